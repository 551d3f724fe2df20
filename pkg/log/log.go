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

package log

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent  = 4  // spaces to indent file entries
	nameWidth   = 35 // base width for the file path
	sizeWidth   = 10
	statusWidth = 10
)

// 🎯 FileOperation is one file touched by a sync
type FileOperation struct {
	Project string
	Path    string
	Size    int64
	Removed bool
	Failed  bool
	Err     error
}

func (op FileOperation) status() string {
	switch {
	case op.Failed:
		return "FAILED"
	case op.Removed:
		return "REMOVED"
	default:
		return "FETCHED"
	}
}

// 📦 ProjectOperation is a sync of one project
type ProjectOperation struct {
	Name string
	Dir  string
	Mode string // "download" or "refresh"
}

type projectRun struct {
	op    ProjectOperation
	files []FileOperation
}

// 🎯 Logger prints sync progress to a console and mirrors it to zerolog.
// It is safe for concurrent use; several projects may sync at once.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
	runs    map[string]*projectRun
}

// 🏭 New creates a new logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
		runs:    map[string]*projectRun{},
	}
}

type contextKey struct{}

// 🎯 FromContext gets the logger from context, or a silent one.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return New(io.Discard, zerolog.Nop())
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

func (l *Logger) formatFileOperation(op FileOperation) string {
	var symbol rune
	var symbolColor color.Attribute
	switch {
	case op.Failed:
		symbol = '!'
		symbolColor = color.FgYellow
	case op.Removed:
		symbol = '✗'
		symbolColor = color.FgRed
	default:
		symbol = '✓'
		symbolColor = color.FgGreen
	}

	size := ""
	if !op.Removed && !op.Failed {
		size = FormatSize(op.Size)
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, op.Path),
		color.New(color.Faint).Sprint(fmt.Sprintf("%*s", sizeWidth, size)),
		fmt.Sprintf("%-*s", statusWidth, op.status()))
}

// 📝 LogFileOperation prints one file line and records it for the summary
func (l *Logger) LogFileOperation(ctx context.Context, op FileOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if run, ok := l.runs[op.Project]; ok {
		run.files = append(run.files, op)
	}

	fmt.Fprintln(l.console, l.formatFileOperation(op))

	ev := l.zlog.Info()
	if op.Failed {
		ev = l.zlog.Warn().Err(op.Err)
	}
	ev.Str("project", op.Project).
		Str("file", op.Path).
		Int64("size", op.Size).
		Str("status", op.status()).
		Msg("file operation")
}

// 📝 StartProjectOperation prints the project header
func (l *Logger) StartProjectOperation(ctx context.Context, op ProjectOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.runs[op.Name] = &projectRun{op: op}

	fmt.Fprintf(l.console, "[syncing %s]\n", color.New(color.FgCyan).Sprint(op.Dir))
	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprint(op.Name),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(op.Mode))

	l.zlog.Info().
		Str("project", op.Name).
		Str("dir", op.Dir).
		Str("mode", op.Mode).
		Msg("starting project sync")
}

// 📝 EndProjectOperation prints the project summary
func (l *Logger) EndProjectOperation(ctx context.Context, name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.runs[name]
	if !ok {
		return
	}
	delete(l.runs, name)

	var fetched, removed, failed int
	var bytes int64
	for _, f := range run.files {
		switch {
		case f.Failed:
			failed++
		case f.Removed:
			removed++
		default:
			fetched++
			bytes += f.Size
		}
	}

	summary := fmt.Sprintf("%s: %d fetched (%s), %d removed", name, fetched, FormatSize(bytes), removed)
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	if err != nil {
		fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(summary+": "+err.Error()))
		l.zlog.Error().Err(err).Str("project", name).Int("fetched", fetched).Int("removed", removed).Msg("project sync failed")
		return
	}
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(summary))
	l.zlog.Info().Str("project", name).Int("fetched", fetched).Int("removed", removed).Msg("project sync complete")
}

// Active lists projects with an open operation, sorted.
func (l *Logger) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.runs))
	for name := range l.runs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("merginsync")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
