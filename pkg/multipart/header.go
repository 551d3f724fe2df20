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

package multipart

import (
	"bytes"
	"mime"
	"net/textproto"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/syncerr"
)

// BoundaryFromContentType extracts the boundary token from a
// "multipart/...; boundary=<token>" header value.
func BoundaryFromContentType(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.Errorf("%w: parsing content type %q: %v", syncerr.ErrDecode, contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", errors.Errorf("%w: content type %q is not multipart", syncerr.ErrDecode, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", errors.Errorf("%w: content type %q has no boundary", syncerr.ErrDecode, contentType)
	}
	return boundary, nil
}

// parseHeader returns the filename from a part header block. A part without
// a Content-Disposition filename yields "".
func parseHeader(block []byte) (string, error) {
	if len(block) == 0 {
		return "", nil
	}

	var filename string
	for _, line := range bytes.Split(block, crlf) {
		key, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			return "", errors.Errorf("%w: malformed header line %q", syncerr.ErrDecode, line)
		}
		if textproto.CanonicalMIMEHeaderKey(string(bytes.TrimSpace(key))) != "Content-Disposition" {
			continue
		}
		_, params, err := mime.ParseMediaType(string(bytes.TrimSpace(value)))
		if err != nil {
			return "", errors.Errorf("%w: parsing content disposition: %v", syncerr.ErrDecode, err)
		}
		filename = params["filename"]
	}
	return filename, nil
}
