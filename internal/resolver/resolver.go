// Package resolver looks up an anchor's 3-D coordinates by id against the
// external configuration service, over HTTP with basic auth.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cep95-engine/internal/geometry"
)

// DefaultTimeout is the HTTP round-trip timeout (§5, §6: default 30 s).
const DefaultTimeout = 30 * time.Second

// coordPayload is the shape of one element of the anchor-resolution
// endpoint's JSON array response.
type coordPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HTTPResolver implements registry.Resolver against an HTTP GET endpoint.
// URLTemplate must contain exactly one "{}" placeholder, substituted with
// the anchor id, mirroring the config service's
// ".../dongles?macAddress={}" convention.
type HTTPResolver struct {
	URLTemplate string
	Username    string
	Password    string

	Client *http.Client
}

// New returns an HTTPResolver with a 30 s timeout client.
func New(urlTemplate, username, password string) *HTTPResolver {
	return &HTTPResolver{
		URLTemplate: urlTemplate,
		Username:    username,
		Password:    password,
		Client:      &http.Client{Timeout: DefaultTimeout},
	}
}

// Resolve performs the HTTP GET and decodes the first array element's x/y/z
// into a Point3. A non-200 status, a request error, or an empty/invalid
// body is a resolution failure.
func (h *HTTPResolver) Resolve(ctx context.Context, anchorID string) (geometry.Point3, error) {
	url := strings.Replace(h.URLTemplate, "{}", anchorID, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return geometry.Point3{}, fmt.Errorf("resolver: building request for %s: %w", anchorID, err)
	}
	if h.Username != "" || h.Password != "" {
		req.SetBasicAuth(h.Username, h.Password)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return geometry.Point3{}, fmt.Errorf("resolver: request for %s: %w", anchorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geometry.Point3{}, fmt.Errorf("resolver: %s returned status %d", anchorID, resp.StatusCode)
	}

	var payload []coordPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return geometry.Point3{}, fmt.Errorf("resolver: decoding response for %s: %w", anchorID, err)
	}
	if len(payload) == 0 {
		return geometry.Point3{}, fmt.Errorf("resolver: empty response for %s", anchorID)
	}

	first := payload[0]
	return geometry.Point3{X: first.X, Y: first.Y, Z: first.Z}, nil
}
