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

package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repoforge/repoforge/pkg/svcregistry"
	"github.com/repoforge/repoforge/pkg/tmpl"
)

type fakeServiceGetter struct {
	recs map[string]*svcregistry.Record
}

func (f *fakeServiceGetter) Get(name, version string) (*svcregistry.Record, error) {
	return f.recs[name], nil
}

func TestAppDeployerRendersNamespaceAndApplies(t *testing.T) {
	orch := &fakeOrch{podIPs: map[string]string{"dep-1": "10.0.0.9"}}
	proxy := &fakeProxy{}
	controller := newTestController(orch, proxy)

	deployer := &AppDeployer{
		Services:      &fakeServiceGetter{},
		Controller:    controller,
		DeployRoot:    t.TempDir(),
		NamespaceTmpl: `{"kind":"Namespace","metadata":{"name":"{{name}}"}}`,
	}

	url, err := deployer.Deploy(context.Background(), "acme-demo", "dep-1", tmpl.Params{"app.name": "demo"}, nil, "single-node")
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if url != "https://cluster.example/dep-1" {
		t.Errorf("Deploy url = %q", url)
	}

	written, err := os.ReadFile(filepath.Join(deployer.DeployRoot, "acme-demo", "deploy", "namespace.json"))
	if err != nil {
		t.Fatalf("namespace.json not written: %v", err)
	}
	if got := string(written); got != `{"kind":"Namespace","metadata":{"name":"dep-1"}}` {
		t.Errorf("namespace.json = %q", got)
	}
}
