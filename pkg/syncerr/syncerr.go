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

// Package syncerr holds the error taxonomy shared by the sync client.
package syncerr

import (
	"context"
	"fmt"

	"gitlab.com/tozd/go/errors"
)

var (
	// ErrAuth is returned before any I/O when no auth token is configured.
	ErrAuth = errors.Base("missing auth token")

	// ErrDuplicateRequest is returned when a request for the same project is already in flight.
	ErrDuplicateRequest = errors.Base("request already pending")

	// ErrDecode marks malformed multipart framing.
	ErrDecode = errors.Base("malformed multipart stream")

	// ErrIO marks a failed file create, write or delete.
	ErrIO = errors.Base("file i/o failed")

	// ErrClosed is returned once a catalog has been closed.
	ErrClosed = errors.Base("catalog closed")
)

// 🌐 NetworkError is a non-success transport or HTTP outcome.
type NetworkError struct {
	Message    string // human readable cause
	Context    string // operation that issued the request, e.g. "listProjects"
	StatusCode int    // HTTP status, zero for transport failures
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("network error: %s", e.Message)
	}
	return fmt.Sprintf("network error in %s(): %s", e.Context, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Canceled reports whether the request was canceled by its caller.
func (e *NetworkError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// Network converts err into a *NetworkError carrying the given operation
// context. An existing *NetworkError keeps its message and status code.
func Network(err error, op string) *NetworkError {
	if err == nil {
		return nil
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return &NetworkError{
			Message:    nerr.Message,
			Context:    op,
			StatusCode: nerr.StatusCode,
			Err:        nerr.Err,
		}
	}
	return &NetworkError{
		Message: err.Error(),
		Context: op,
		Err:     err,
	}
}

// 📁 FileError is an IOError scoped to one path. It matches ErrIO with errors.Is.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) Is(target error) bool {
	return target == ErrIO
}

// IO builds a *FileError.
func IO(op, path string, err error) error {
	return &FileError{Op: op, Path: path, Err: err}
}
