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

// Package proxyclient talks to the front-end routing proxy: it
// registers, removes and queries per-deployment routes, and persists
// the proxy's {url, token} to disk after cluster bring-up.
package proxyclient

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to the proxy's route API. It reads {url, token} from
// disk on every operation rather than caching it in memory, so a
// rewrite by cluster bring-up is picked up without coordination.
type Client struct {
	infoPath string
	http     *http.Client
}

// New returns a Client that reads its {url, token} from infoPath (e.g.
// Config.ProxyInfoPath()).
func New(infoPath string) *Client {
	return &Client{infoPath: infoPath, http: &http.Client{Timeout: 10 * time.Second}}
}

// WriteInfo persists {url, token} to infoPath as two lines: URL first,
// token second.
func WriteInfo(infoPath, url, token string) error {
	content := fmt.Sprintf("%s\n%s\n", url, token)
	return os.WriteFile(infoPath, []byte(content), 0600)
}

func (c *Client) readInfo() (url, token string, err error) {
	f, err := os.Open(c.infoPath)
	if err != nil {
		return "", "", fmt.Errorf("proxyclient: read proxy info: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}
	if len(lines) < 2 {
		return "", "", fmt.Errorf("proxyclient: malformed proxy info file %s", c.infoPath)
	}
	return strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1]), nil
}

// Register registers deploymentID's route against targetURL. Expects a
// 201 response; the caller is responsible for retrying.
func (c *Client) Register(deploymentID, targetURL string) error {
	url, token, err := c.readInfo()
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"target": targetURL})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url+"/"+deploymentID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("proxyclient: register %s: %w", deploymentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("proxyclient: register %s: unexpected status %d", deploymentID, resp.StatusCode)
	}
	return nil
}

// Remove deletes deploymentID's route. Expects a 204 response.
func (c *Client) Remove(deploymentID string) error {
	url, token, err := c.readInfo()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodDelete, url+"/"+deploymentID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("proxyclient: remove %s: %w", deploymentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("proxyclient: remove %s: unexpected status %d", deploymentID, resp.StatusCode)
	}
	return nil
}

// InactiveRoutes returns the deployment ids (leading "/" stripped) of
// every route whose last_activity is older than thresholdISO, queried
// via the proxy's "inactive_since" query parameter.
func (c *Client) InactiveRoutes(thresholdISO string) ([]string, error) {
	url, token, err := c.readInfo()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, url+"?inactive_since="+thresholdISO, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxyclient: inactive routes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxyclient: inactive routes: unexpected status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var routes map[string]json.RawMessage
	if err := json.Unmarshal(b, &routes); err != nil {
		return nil, fmt.Errorf("proxyclient: decode inactive routes: %w", err)
	}

	out := make([]string, 0, len(routes))
	for path := range routes {
		out = append(out, strings.TrimPrefix(path, "/"))
	}
	return out, nil
}
