package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/mod/semver"
)

// MinBackendVersion is the oldest backend API this client speaks.
const MinBackendVersion = "v1.2.0"

// HealthInfo is returned by the backend's health endpoint.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health fetches backend status. It does not require authentication.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var out HealthInfo
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckCompatible returns an error when version is older than
// MinBackendVersion. Versions without a leading "v" are accepted.
func CheckCompatible(version string) error {
	v := strings.TrimSpace(version)
	if v == "" {
		return fmt.Errorf("backend did not report a version")
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("backend version %q is not a semantic version", version)
	}
	if semver.Compare(v, MinBackendVersion) < 0 {
		return fmt.Errorf("backend version %s is older than required %s", semver.Canonical(v), MinBackendVersion)
	}
	return nil
}

// CheckBackend calls Health and CheckCompatible.
func (c *Client) CheckBackend(ctx context.Context) (*HealthInfo, error) {
	info, err := c.Health(ctx)
	if err != nil {
		return nil, err
	}
	if err := CheckCompatible(info.Version); err != nil {
		c.logger.Printf("Warning: %v", err)
		return info, err
	}
	return info, nil
}
