package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// AuditLog is the complete version record for a package, including versions
// that were later unpublished. This is the authoritative burned-version
// source: a registry lookup alone forgets unpublished versions.
type AuditLog struct {
	PackageName string
	AllVersions []string
	Unpublished []string
}

// AuditProvider returns the ever-existed version set for a package.
type AuditProvider interface {
	VersionLog(ctx context.Context, packageName string) (AuditLog, error)
}

// HTTPAuditClient implements AuditProvider against a version-audit service.
type HTTPAuditClient struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

// NewHTTPAuditClient constructs a client for the configured audit endpoint.
func NewHTTPAuditClient(baseURL, path string, timeout time.Duration) *HTTPAuditClient {
	return &HTTPAuditClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// VersionLog fetches the audit record. An unknown package yields an empty
// log, not an error.
func (c *HTTPAuditClient) VersionLog(ctx context.Context, packageName string) (AuditLog, error) {
	if c == nil || c.baseURL == "" {
		return AuditLog{}, fmt.Errorf("audit base URL not configured")
	}
	if packageName == "" {
		return AuditLog{}, fmt.Errorf("package name is required")
	}

	endpoint := c.baseURL + c.path + "/" + url.PathEscape(packageName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AuditLog{}, fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AuditLog{}, utils.NewAppError("audit.versionlog", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return AuditLog{PackageName: packageName}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return AuditLog{}, utils.NewAppError("audit.versionlog",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload struct {
		Versions    []string `json:"versions"`
		Unpublished []string `json:"unpublished"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return AuditLog{}, fmt.Errorf("decode audit response: %w", err)
	}

	return AuditLog{
		PackageName: packageName,
		AllVersions: payload.Versions,
		Unpublished: payload.Unpublished,
	}, nil
}
