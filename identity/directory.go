package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-receipts/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxIdentityBytes      = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DirectoryConfig points the builtin lookup at the platform's user
// directory.
type DirectoryConfig struct {
	BaseURL        string
	BearerToken    string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
}

// HTTPDirectory is the builtin-mode identity collaborator: one GET per
// user id against the platform directory.
type HTTPDirectory struct {
	baseURL        string
	bearerToken    string
	httpClient     HTTPDoer
	requestTimeout time.Duration
}

func NewHTTPDirectory(cfg DirectoryConfig) (*HTTPDirectory, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, core.BadInputError("identity: directory base url is required", nil)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &HTTPDirectory{
		baseURL:        baseURL,
		bearerToken:    strings.TrimSpace(cfg.BearerToken),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

var _ core.DirectoryClient = (*HTTPDirectory)(nil)

func (d *HTTPDirectory) Lookup(ctx context.Context, userID string) (core.IdentityRecord, error) {
	if d == nil {
		return core.IdentityRecord{}, fmt.Errorf("identity: directory is nil")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.IdentityRecord{}, fmt.Errorf("identity: user id is required")
	}

	requestCtx := ctx
	cancel := func() {}
	if d.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, d.requestTimeout)
	}
	defer cancel()

	endpoint := d.baseURL + "/users/" + url.PathEscape(userID) + "/identity"
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.IdentityRecord{}, err
	}
	req.Header.Set("Accept", "application/json")
	if d.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.bearerToken)
	}

	res, err := d.httpClient.Do(req)
	if err != nil {
		return core.IdentityRecord{}, err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxIdentityBytes+1))
	if readErr != nil {
		return core.IdentityRecord{}, fmt.Errorf("identity: read directory response: %w", readErr)
	}
	if int64(len(body)) > maxIdentityBytes {
		return core.IdentityRecord{}, fmt.Errorf("identity: directory response exceeds %d bytes", maxIdentityBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.IdentityRecord{}, fmt.Errorf("identity: directory returned status %d for %s", res.StatusCode, userID)
	}

	record := core.IdentityRecord{}
	if err := json.Unmarshal(body, &record); err != nil {
		return core.IdentityRecord{}, fmt.Errorf("identity: decode identity record: %w", err)
	}
	if strings.TrimSpace(record.UserID) == "" {
		record.UserID = userID
	}
	return record, nil
}
