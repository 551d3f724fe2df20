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

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(hclParser{})
}

// hclParser reads top level attributes. env("NAME") is available in
// expressions, so a token can stay out of the file.
type hclParser struct{}

func (hclParser) Format() string { return "hcl" }

func (hclParser) CanParse(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".hcl")
}

func (hclParser) Decode(data []byte, cfg *Config) error {
	file, diags := hclparse.NewParser().ParseHCL(data, "merginsync.hcl")
	if diags.HasErrors() {
		return errors.New(diags.Error())
	}

	evalCtx := &hcl.EvalContext{Functions: functions()}
	if diags := gohcl.DecodeBody(file.Body, evalCtx, cfg); diags.HasErrors() {
		return errors.New(diags.Error())
	}
	return nil
}

func functions() map[string]function.Function {
	return map[string]function.Function{
		"env": function.New(&function.Spec{
			Params: []function.Parameter{{Name: "name", Type: cty.String}},
			Type:   function.StaticReturnType(cty.String),
			Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
				return cty.StringVal(os.Getenv(args[0].AsString())), nil
			},
		}),
	}
}
