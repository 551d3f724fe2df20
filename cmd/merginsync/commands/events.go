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

package commands

import (
	"context"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/walteh/merginsync/pkg/catalog"
	"github.com/walteh/merginsync/pkg/log"
)

// Notifier prints catalog events to the console.
func Notifier(ctx context.Context, console *log.Logger) func(catalog.Event) {
	logger := zerolog.Ctx(ctx)
	return func(ev catalog.Event) {
		switch ev.Kind {
		case catalog.EventFileFetched:
			console.LogFileOperation(ctx, log.FileOperation{Project: ev.Project, Path: ev.Path, Size: ev.Size})
		case catalog.EventFileRemoved:
			console.LogFileOperation(ctx, log.FileOperation{Project: ev.Project, Path: ev.Path, Removed: true})
		case catalog.EventNotify:
			if ev.Err != nil {
				console.Warningf("%s: %v", ev.Message, ev.Err)
			} else {
				console.Info(ev.Message)
			}
		case catalog.EventNetworkError:
			console.Errorf("network error: %s", ev.Message)
		case catalog.EventStatusChanged:
			console.Infof("%s changed locally", ev.Project)
		default:
			logger.Debug().Str("event", ev.Kind.String()).Str("project", ev.Project).Msg("catalog event")
		}
	}
}

// renderProjects prints the catalog as a table.
func renderProjects(projects []catalog.Project) error {
	if len(projects) == 0 {
		pterm.Info.Println("no projects")
		return nil
	}

	data := pterm.TableData{{"Project", "Status", "Files", "Size", "Server", "Local", "Tags"}}
	for _, p := range projects {
		files, size := "-", "-"
		if p.HasMeta {
			files = pterm.Sprint(p.FilesCount)
			size = log.FormatSize(p.Size)
		}
		data = append(data, []string{
			p.Name,
			statusLabel(p),
			files,
			size,
			formatTime(p.ServerUpdatedAt),
			formatTime(p.LocalUpdatedAt),
			joinTags(p.Tags),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func statusLabel(p catalog.Project) string {
	label := p.Status.String()
	if p.Pending {
		return pterm.FgCyan.Sprint(label + " (syncing)")
	}
	switch p.Status {
	case catalog.UpToDate:
		return pterm.FgGreen.Sprint(label)
	case catalog.OutOfDate:
		return pterm.FgYellow.Sprint(label)
	default:
		return pterm.FgWhite.Sprint(label)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
