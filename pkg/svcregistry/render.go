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

package svcregistry

import (
	"encoding/json"
	"fmt"

	"github.com/repoforge/repoforge/pkg/tmpl"
)

// deploymentDoc is the rendered shape of deployments/{mode}.json, listing
// the pod/controller/service components a deployment mode is made of.
type deploymentDoc struct {
	Components []componentEntry `json:"components"`
}

type componentEntry struct {
	Name        string              `json:"name"`
	Parameters  map[string]string   `json:"parameters,omitempty"`
	Deployments []componentDeployment `json:"deployments"`
}

type componentDeployment struct {
	Type       string            `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RenderedManifest is one {component}-{type}.json file produced by
// RenderDeployment.
type RenderedManifest struct {
	Filename string
	Content  string
}

// RenderDeployment renders rec's deployment manifests for mode.
// appParams is the
// app-level parameter map (already namespaced "app."); typeTemplates maps
// a manifest type's file name ("pod.json", "controller.json",
// "service.json", ...) to its raw template text, supplied by the caller (the shared image-template
// tree). dockerUser prefixes each component's image name.
func RenderDeployment(rec *Record, mode string, appParams tmpl.Params, typeTemplates map[string]string, dockerUser string) ([]RenderedManifest, error) {
	depRaw, ok := rec.Deployments[mode]
	if !ok {
		return nil, fmt.Errorf("svcregistry: service %s does not support %s deployment", rec.FullName(), mode)
	}

	serviceParams := tmpl.Merge(appParams, tmpl.Namespace("service", rec.Spec.Parameters))

	renderedDep := tmpl.RenderString(depRaw, serviceParams)
	var doc deploymentDoc
	if err := json.Unmarshal([]byte(renderedDep), &doc); err != nil {
		return nil, fmt.Errorf("svcregistry: decode rendered deployment %s/%s: %w", rec.FullName(), mode, err)
	}

	var out []RenderedManifest
	for _, comp := range doc.Components {
		compTemplate, ok := rec.Components[comp.Name+".json"]
		if !ok {
			return nil, fmt.Errorf("svcregistry: service %s has no component template %q", rec.FullName(), comp.Name)
		}

		for _, d := range comp.Deployments {
			depParams := map[string]string{}
			for k, v := range d.Parameters {
				depParams[k] = v
			}
			for k, v := range comp.Parameters {
				depParams[k] = v
			}
			depParams["name"] = comp.Name
			depParams["image_name"] = dockerUser + "/" + rec.FullName() + "-" + comp.Name

			finalParams := tmpl.Merge(serviceParams, tmpl.Namespace("component", depParams))

			filledComp := tmpl.RenderString(compTemplate, finalParams)
			finalParams["containers"] = filledComp

			typeTemplate, ok := typeTemplates[d.Type+".json"]
			if !ok {
				return nil, fmt.Errorf("svcregistry: unknown manifest type %q", d.Type)
			}
			filled := tmpl.RenderString(typeTemplate, finalParams)

			out = append(out, RenderedManifest{
				Filename: comp.Name + "-" + d.Type + ".json",
				Content:  filled,
			})
		}
	}
	return out, nil
}
