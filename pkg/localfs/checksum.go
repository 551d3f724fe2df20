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

// Package localfs inspects a project directory: content checksums, file
// listings and aggregate sizes. Everything goes through an afero.Fs so the
// same code runs against the OS or an in-memory filesystem.
package localfs

import (
	"crypto/sha1"
	"encoding/hex"
	"io"

	"github.com/spf13/afero"
)

// ChunkSize is the read size used while hashing.
const ChunkSize = 64 * 1024

// 🔍 Checksum returns the lowercase hex SHA-1 of the file at path.
//
// A missing, unreadable or empty file yields "". Callers compare against a
// server checksum, so "" never matches and always triggers a re-fetch.
func Checksum(fs afero.Fs, path string) string {
	f, err := fs.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return ""
		}
	}
	if total == 0 {
		return ""
	}

	return hex.EncodeToString(h.Sum(nil))
}
