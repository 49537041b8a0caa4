// Package providers holds the external data sources consumed by the oracles.
// Each provider is a black box that returns structured data or fails; the
// oracle boundary converts failures into low-confidence results.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// RegistryInfo is the registry's view of a package.
type RegistryInfo struct {
	Name     string
	Versions []string
	Latest   string
	NotFound bool
}

// RegistryProvider queries the live package registry.
type RegistryProvider interface {
	Lookup(ctx context.Context, packageName string) (RegistryInfo, error)
}

// NPMRegistryClient implements RegistryProvider against an npm-compatible
// registry's packument endpoint.
type NPMRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNPMRegistryClient constructs a client targeting the configured registry.
func NewNPMRegistryClient(baseURL string, timeout time.Duration) *NPMRegistryClient {
	return &NPMRegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Lookup fetches the packument for packageName. A 404 is not an error: it is
// a valid not-found signal meaning the package has never been published.
func (c *NPMRegistryClient) Lookup(ctx context.Context, packageName string) (RegistryInfo, error) {
	if c == nil || c.baseURL == "" {
		return RegistryInfo{}, fmt.Errorf("registry base URL not configured")
	}
	if packageName == "" {
		return RegistryInfo{}, fmt.Errorf("package name is required")
	}

	// Scoped names ("@scope/name") must keep the slash encoded.
	endpoint := c.baseURL + "/" + url.PathEscape(packageName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RegistryInfo{}, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RegistryInfo{}, utils.NewAppError("registry.lookup", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RegistryInfo{Name: packageName, NotFound: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RegistryInfo{}, utils.NewAppError("registry.lookup",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var packument struct {
		Name     string                     `json:"name"`
		Versions map[string]json.RawMessage `json:"versions"`
		DistTags map[string]string          `json:"dist-tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&packument); err != nil {
		return RegistryInfo{}, fmt.Errorf("decode packument: %w", err)
	}

	versions := make([]string, 0, len(packument.Versions))
	for v := range packument.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	return RegistryInfo{
		Name:     packument.Name,
		Versions: versions,
		Latest:   packument.DistTags["latest"],
	}, nil
}
