// Copyright 2025 AUTHORS
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

// Package tmpl implements the system's {{key}} token substitution
// engine. It is a single-pass, namespace-aware textual substitution:
// it never re-expands text it has already substituted, and
// a referenced key with no matching parameter is left untouched rather
// than erroring.
package tmpl

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Params is a flat parameter map, keyed by (possibly namespaced) name.
type Params map[string]string

// Namespace returns a copy of params with every key prefixed by
// "{ns}.".
func Namespace(ns string, params Params) Params {
	out := make(Params, len(params))
	for k, v := range params {
		out[ns+"."+k] = v
	}
	return out
}

// Merge returns a new Params containing every key from each of ps, later
// maps taking precedence over earlier ones on key collision.
func Merge(ps ...Params) Params {
	out := make(Params)
	for _, p := range ps {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// RenderString substitutes every {{key}} occurrence in s using params. A
// key with no entry in params is left as-is: the substitution is
// performed in a single pass over the original text, so substituted
// values are never themselves rescanned for further {{key}} references.
func RenderString(s string, params Params) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if v, ok := params[key]; ok {
			return v
		}
		return match
	})
}

// RenderFile substitutes every {{key}} occurrence in the file at path
// in place. IO errors are returned rather than logged so the caller
// (which has app/service context) can attribute them.
func RenderFile(path string, params Params) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(RenderString(string(raw), params)), 0644)
}

// RenderTree walks root and calls RenderFile on every regular file
// under it.
func RenderTree(root string, params Params) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return RenderFile(path, params)
	})
}
