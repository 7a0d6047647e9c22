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

package main

import "testing"

func TestSplitOrgRepo(t *testing.T) {
	cases := []struct {
		in        string
		org, repo string
		wantErr   bool
	}{
		{"acme/notebooks", "acme", "notebooks", false},
		{"acme/sub/notebooks", "acme", "sub/notebooks", false},
		{"no-slash", "", "", true},
		{"/missing-org", "", "", true},
		{"missing-repo/", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		org, repo, err := splitOrgRepo(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("splitOrgRepo(%q): expected an error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitOrgRepo(%q): unexpected error %v", tc.in, err)
			continue
		}
		if org != tc.org || repo != tc.repo {
			t.Errorf("splitOrgRepo(%q) = (%q, %q), want (%q, %q)", tc.in, org, repo, tc.org, tc.repo)
		}
	}
}
