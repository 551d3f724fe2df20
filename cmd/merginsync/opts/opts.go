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

package opts

import (
	"context"

	"github.com/walteh/merginsync/pkg/catalog"
	"github.com/walteh/merginsync/pkg/config"
	"github.com/walteh/merginsync/pkg/log"
	"github.com/walteh/merginsync/pkg/metrics"
)

// RootOpts is shared by every subcommand. It is filled in before a
// subcommand runs.
type RootOpts struct {
	Config  *config.Config
	Console *log.Logger
	Metrics *metrics.Metrics

	// Open builds the catalog lazily so commands that never touch it
	// (version) do not need a token or data directory.
	Open func(ctx context.Context, notify func(catalog.Event)) (*catalog.Catalog, error)
}
