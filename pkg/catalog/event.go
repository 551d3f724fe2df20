// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import "fmt"

// EventKind tells which fields of an Event are set.
type EventKind int

const (
	// EventListFinished follows a successful listing.
	EventListFinished EventKind = iota + 1
	// EventDownloadFinished carries Project and Dir.
	EventDownloadFinished
	// EventNetworkError carries Err, a *syncerr.NetworkError.
	EventNetworkError
	// EventFileRemoved carries Project and Path.
	EventFileRemoved
	// EventFileFetched carries Project, Path and Size.
	EventFileFetched
	// EventNotify carries Message and sometimes Err.
	EventNotify
	// EventStatusChanged carries Project after a local refresh changed its status.
	EventStatusChanged
)

func (k EventKind) String() string {
	switch k {
	case EventListFinished:
		return "listFinished"
	case EventDownloadFinished:
		return "downloadFinished"
	case EventNetworkError:
		return "networkError"
	case EventFileRemoved:
		return "fileRemoved"
	case EventFileFetched:
		return "fileFetched"
	case EventNotify:
		return "notify"
	case EventStatusChanged:
		return "statusChanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to Options.Notify on the owner goroutine.
type Event struct {
	Kind    EventKind
	Project string
	Path    string
	Dir     string
	Size    int64
	Message string
	Err     error
}
