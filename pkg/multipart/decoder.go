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

// Package multipart decodes a streamed multipart/form-data response straight
// to disk, one file per part, without holding more than a couple of chunks
// in memory.
package multipart

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/merginsync/pkg/bufpool"
	"github.com/walteh/merginsync/pkg/syncerr"
)

const (
	// DefaultChunkSize is the size of a single body read.
	DefaultChunkSize = 64 * 1024

	// DefaultMaxHeaderBytes bounds one part header block.
	DefaultMaxHeaderBytes = 8 * 1024

	// slack is kept past the delimiter length when flushing body bytes.
	slack = 4
)

var (
	crlf      = []byte("\r\n")
	headerEnd = []byte("\r\n\r\n")
	dashes    = []byte("--")
)

// 🚦 state is the decoder position in the stream.
type state int

const (
	stateAwaitingBoundary state = iota // before the first delimiter, skipping preamble
	stateAfterDelimiter                // just consumed a delimiter, "--" or CRLF follows
	stateReadingHeader                 // collecting a part header block
	stateStreamingBody                 // copying part payload to disk
	stateTerminal                      // closing delimiter seen or stream ended
)

func (s state) String() string {
	switch s {
	case stateAwaitingBoundary:
		return "awaiting_boundary"
	case stateAfterDelimiter:
		return "after_delimiter"
	case stateReadingHeader:
		return "reading_header"
	case stateStreamingBody:
		return "streaming_body"
	case stateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Options tunes a Decoder. Zero values fall back to defaults.
type Options struct {
	ChunkSize      int
	MaxHeaderBytes int

	// Pool supplies read buffers; its Size overrides ChunkSize.
	Pool *bufpool.Pool

	// OnFile is called after each part is closed.
	OnFile func(FileResult)
}

// 📄 FileResult describes one decoded part.
type FileResult struct {
	Path string // destination-relative, slash separated
	Size int64  // bytes written
	Err  error  // set when the file could not be fully written; matches syncerr.ErrIO
}

// Result summarizes a decoded stream.
type Result struct {
	Files     []FileResult
	BytesRead int64
}

// Failed returns the parts that were not fully written.
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

type activeFile struct {
	rel  string
	file afero.File
	size int64
	err  error
	skip bool // part carries no filename
}

// 📦 Decoder is an incremental multipart parser. It tracks a cursor into its
// buffer so body bytes are scanned for the delimiter only once, plus the
// overlap needed to catch a delimiter split across reads.
//
// A Decoder serves one stream and is not safe for concurrent use.
type Decoder struct {
	fs        afero.Fs
	dest      string
	boundary  string
	dashBound []byte // "--" + boundary, opens the stream
	delimiter []byte // CRLF + "--" + boundary, separates parts

	chunkSize int
	maxHeader int
	pool      *bufpool.Pool
	onFile    func(FileResult)

	state         state
	buf           []byte
	scanned       int // prefix of buf already searched for the delimiter
	headerRetried bool
	active        *activeFile
	result        Result
}

// 🏭 NewDecoder creates a decoder writing parts below dest.
func NewDecoder(fs afero.Fs, dest, boundary string, opts Options) *Decoder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxHeaderBytes <= 0 {
		opts.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if opts.Pool != nil {
		opts.ChunkSize = opts.Pool.Size()
	}

	return &Decoder{
		fs:        fs,
		dest:      filepath.Clean(dest),
		boundary:  boundary,
		dashBound: []byte("--" + boundary),
		delimiter: []byte("\r\n--" + boundary),
		chunkSize: opts.ChunkSize,
		maxHeader: opts.MaxHeaderBytes,
		pool:      opts.Pool,
		onFile:    opts.OnFile,
		state:     stateAwaitingBoundary,
	}
}

// Decode consumes r until the closing delimiter or end of stream. Framing
// errors match syncerr.ErrDecode. Per-file write failures do not stop the
// decoder; they are reported in Result.Files.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	var chunk []byte
	if d.pool != nil {
		chunk = d.pool.Get()
		defer d.pool.Put(chunk)
	} else {
		chunk = make([]byte, d.chunkSize)
	}
	defer d.closeActive()

	eof := false
	for d.state != stateTerminal {
		if err := ctx.Err(); err != nil {
			return &d.result, errors.Errorf("decoding stream: %w", err)
		}

		progressed, err := d.advance()
		if err != nil {
			return &d.result, err
		}
		if progressed {
			continue
		}

		if eof {
			if err := d.finish(); err != nil {
				return &d.result, err
			}
			break
		}

		n, rerr := r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
			d.result.BytesRead += int64(n)
		}
		if rerr == io.EOF {
			eof = true
		} else if rerr != nil {
			return &d.result, errors.Errorf("reading stream: %w", rerr)
		}
	}

	logger.Debug().
		Str("dest", d.dest).
		Int("files", len(d.result.Files)).
		Int64("bytes", d.result.BytesRead).
		Msg("multipart stream decoded")

	return &d.result, nil
}

// advance runs one transition. It reports false when more input is needed.
func (d *Decoder) advance() (bool, error) {
	switch d.state {
	case stateAwaitingBoundary:
		return d.awaitBoundary(), nil
	case stateAfterDelimiter:
		return d.afterDelimiter()
	case stateReadingHeader:
		return d.readHeader()
	case stateStreamingBody:
		return d.streamBody()
	default:
		return false, nil
	}
}

func (d *Decoder) awaitBoundary() bool {
	i := bytes.Index(d.buf, d.dashBound)
	if i < 0 {
		// drop preamble, keeping what could be the start of a split marker
		if keep := len(d.dashBound) - 1; len(d.buf) > keep {
			d.discard(len(d.buf) - keep)
		}
		return false
	}
	d.discard(i + len(d.dashBound))
	d.state = stateAfterDelimiter
	return true
}

func (d *Decoder) afterDelimiter() (bool, error) {
	if len(d.buf) < 2 {
		return false, nil
	}
	switch {
	case bytes.HasPrefix(d.buf, dashes):
		d.discard(2)
		d.state = stateTerminal
		return true, nil
	case bytes.HasPrefix(d.buf, crlf):
		d.discard(2)
		d.state = stateReadingHeader
		return true, nil
	}

	// transport padding may sit between the boundary and its line break
	j := bytes.Index(d.buf, crlf)
	if j < 0 {
		if len(d.buf) > d.maxHeader {
			return false, errors.Errorf("%w: unterminated boundary line", syncerr.ErrDecode)
		}
		return false, nil
	}
	if len(bytes.TrimLeft(d.buf[:j], " \t")) != 0 {
		return false, errors.Errorf("%w: unexpected bytes after boundary %q", syncerr.ErrDecode, d.boundary)
	}
	d.discard(j + 2)
	d.state = stateReadingHeader
	return true, nil
}

func (d *Decoder) readHeader() (bool, error) {
	var block []byte
	var consumed int
	switch i := bytes.Index(d.buf, headerEnd); {
	case bytes.HasPrefix(d.buf, crlf):
		// part without headers
		consumed = 2
	case i >= 0:
		block = d.buf[:i]
		consumed = i + len(headerEnd)
	default:
		if len(d.buf) < d.maxHeader {
			return false, nil
		}
		return d.retryHeader(errors.Errorf("%w: header block exceeds %d bytes", syncerr.ErrDecode, d.maxHeader))
	}

	filename, err := parseHeader(block)
	if err != nil {
		return d.retryHeader(err)
	}
	d.headerRetried = false

	d.discard(consumed)
	if err := d.openPart(filename); err != nil {
		return false, err
	}
	d.state = stateStreamingBody
	d.scanned = 0
	return true, nil
}

// retryHeader allows exactly one extra chunk read before a header failure
// becomes fatal.
func (d *Decoder) retryHeader(cause error) (bool, error) {
	if d.headerRetried {
		return false, cause
	}
	d.headerRetried = true
	return false, nil
}

func (d *Decoder) streamBody() (bool, error) {
	start := d.scanned - (len(d.delimiter) - 1)
	if start < 0 {
		start = 0
	}

	if i := bytes.Index(d.buf[start:], d.delimiter); i >= 0 {
		end := start + i
		d.write(d.buf[:end])
		d.closeActive()
		d.discard(end + len(d.delimiter))
		d.scanned = 0
		d.state = stateAfterDelimiter
		return true, nil
	}

	d.scanned = len(d.buf)
	keep := len(d.delimiter) + slack
	if flush := len(d.buf) - keep; flush > 0 {
		d.write(d.buf[:flush])
		d.discard(flush)
		d.scanned -= flush
	}
	return false, nil
}

// finish handles end of stream in the current state.
func (d *Decoder) finish() error {
	switch d.state {
	case stateStreamingBody:
		// no closing delimiter: everything left belongs to the open part
		d.write(d.buf)
		d.discard(len(d.buf))
		d.closeActive()
	case stateReadingHeader:
		if len(bytes.TrimSpace(d.buf)) != 0 {
			return errors.Errorf("%w: stream ended inside a part header", syncerr.ErrDecode)
		}
	}
	d.state = stateTerminal
	return nil
}

func (d *Decoder) openPart(filename string) error {
	if filename == "" {
		d.active = &activeFile{skip: true}
		return nil
	}

	rel, err := cleanRelative(filename)
	if err != nil {
		return err
	}

	full := filepath.Join(d.dest, filepath.FromSlash(rel))
	af := &activeFile{rel: rel}
	d.active = af

	if err := d.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		af.err = syncerr.IO("create directory", rel, err)
		return nil
	}
	// truncate once per part; later chunks append through the same handle
	f, err := d.fs.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		af.err = syncerr.IO("create", rel, err)
		return nil
	}
	af.file = f
	return nil
}

func (d *Decoder) write(p []byte) {
	af := d.active
	if af == nil || af.skip || af.err != nil || len(p) == 0 {
		return
	}
	n, err := af.file.Write(p)
	af.size += int64(n)
	if err != nil {
		af.err = syncerr.IO("write", af.rel, err)
	}
}

func (d *Decoder) closeActive() {
	af := d.active
	if af == nil {
		return
	}
	d.active = nil
	if af.skip {
		return
	}
	if af.file != nil {
		if err := af.file.Close(); err != nil && af.err == nil {
			af.err = syncerr.IO("close", af.rel, err)
		}
	}
	res := FileResult{Path: af.rel, Size: af.size, Err: af.err}
	d.result.Files = append(d.result.Files, res)
	if d.onFile != nil {
		d.onFile(res)
	}
}

// discard drops the first n buffered bytes, reusing the backing array.
func (d *Decoder) discard(n int) {
	d.buf = append(d.buf[:0], d.buf[n:]...)
}

// cleanRelative rejects names that would land outside the destination.
func cleanRelative(name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", errors.Errorf("%w: absolute filename %q", syncerr.ErrDecode, name)
	}
	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Errorf("%w: unsafe filename %q", syncerr.ErrDecode, name)
	}
	return clean, nil
}
