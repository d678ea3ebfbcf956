package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-receipts/core"
)

const (
	defaultRequestTimeout    = 10 * time.Second
	maxDirectoryResponseSize = 1 << 20 // 1 MiB

	webhookStatusActive     = "active"
	webhookStatusInactive   = "inactive"
	webhookStatusUnverified = "unverified"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RegistrarConfig points the registrar at the platform's webhook
// directory.
type RegistrarConfig struct {
	BaseURL        string
	BearerToken    string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	Logger         core.Logger
}

// Registrar performs idempotent create-or-activate registration of
// receipt hooks against the platform directory. Registration never
// duplicates: an existing registration with the same name and target
// URL is reused, and an inactive one is re-activated.
type Registrar struct {
	baseURL        string
	bearerToken    string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	logger         core.Logger
}

type directoryWebhook struct {
	ID        string   `json:"id"`
	TargetURL string   `json:"target_url"`
	Events    []string `json:"event_types"`
	Secret    string   `json:"secret,omitempty"`
	Status    string   `json:"status"`
	Config    struct {
		Name string `json:"name"`
	} `json:"config"`
}

func NewRegistrar(cfg RegistrarConfig) (*Registrar, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, core.BadInputError("webhook: registrar base url is required", nil)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Registrar{
		baseURL:        baseURL,
		bearerToken:    strings.TrimSpace(cfg.BearerToken),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         cfg.Logger,
	}, nil
}

// Register ensures the hook's namespaced registration exists and is
// active on the platform. targetURL is the public URL the platform
// will deliver to.
func (r *Registrar) Register(ctx context.Context, hook core.ReceiptHookConfig, targetURL string) error {
	if r == nil {
		return core.InternalError("webhook: registrar is nil", nil)
	}
	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return core.BadInputError("webhook: target url is required", map[string]any{
			"hook_name": hook.OriginalName(),
		})
	}

	existing, err := r.list(ctx)
	if err != nil {
		return err
	}
	name := hook.Name()
	for _, candidate := range existing {
		if !strings.EqualFold(strings.TrimSpace(candidate.Config.Name), name) {
			continue
		}
		// A same-name registration pointing elsewhere is stale, not
		// ours. Leave it alone and register the current target.
		if !strings.EqualFold(strings.TrimSpace(candidate.TargetURL), targetURL) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(candidate.Status)) {
		case webhookStatusActive, webhookStatusUnverified:
			r.logInfo(ctx, "webhook registration already present",
				"hook_name", hook.OriginalName(), "webhook_id", candidate.ID, "status", candidate.Status)
			return nil
		default:
			if err := r.activate(ctx, candidate.ID); err != nil {
				return err
			}
			r.logInfo(ctx, "webhook registration re-activated",
				"hook_name", hook.OriginalName(), "webhook_id", candidate.ID)
			return nil
		}
	}

	created, err := r.create(ctx, hook, targetURL)
	if err != nil {
		return err
	}
	r.logInfo(ctx, "webhook registration created",
		"hook_name", hook.OriginalName(), "webhook_id", created.ID)
	return nil
}

func (r *Registrar) list(ctx context.Context) ([]directoryWebhook, error) {
	body, err := r.do(ctx, http.MethodGet, r.baseURL+"/webhooks", nil)
	if err != nil {
		return nil, err
	}
	var out []directoryWebhook
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, core.InternalError(
			fmt.Sprintf("webhook: decode directory listing: %v", err), nil)
	}
	return out, nil
}

func (r *Registrar) create(ctx context.Context, hook core.ReceiptHookConfig, targetURL string) (directoryWebhook, error) {
	payload := map[string]any{
		"target_url":  targetURL,
		"event_types": hook.Events(),
		"secret":      hook.Secret(),
		"config":      map[string]any{"name": hook.Name()},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return directoryWebhook{}, core.InternalError(
			fmt.Sprintf("webhook: encode registration: %v", err), nil)
	}
	body, err := r.do(ctx, http.MethodPost, r.baseURL+"/webhooks", encoded)
	if err != nil {
		return directoryWebhook{}, err
	}
	created := directoryWebhook{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			return directoryWebhook{}, core.InternalError(
				fmt.Sprintf("webhook: decode registration response: %v", err), nil)
		}
	}
	return created, nil
}

func (r *Registrar) activate(ctx context.Context, webhookID string) error {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return core.BadInputError("webhook: webhook id is required", nil)
	}
	_, err := r.do(ctx, http.MethodPost, r.baseURL+"/webhooks/"+webhookID+"/activate", nil)
	return err
}

func (r *Registrar) do(ctx context.Context, method string, endpoint string, payload []byte) ([]byte, error) {
	requestCtx := ctx
	cancel := func() {}
	if r.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, r.requestTimeout)
	}
	defer cancel()

	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return nil, core.InternalError(fmt.Sprintf("webhook: build directory request: %v", err), nil)
	}
	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearerToken)
	}

	res, err := r.httpClient.Do(req)
	if err != nil {
		return nil, core.InternalError(fmt.Sprintf("webhook: directory request failed: %v", err), nil)
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxDirectoryResponseSize+1))
	if readErr != nil {
		return nil, core.InternalError(fmt.Sprintf("webhook: read directory response: %v", readErr), nil)
	}
	if int64(len(body)) > maxDirectoryResponseSize {
		return nil, core.InternalError("webhook: directory response too large", nil)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, core.InternalError(
			fmt.Sprintf("webhook: directory returned status %d", res.StatusCode),
			map[string]any{"endpoint": endpoint, "status_code": res.StatusCode},
		)
	}
	return body, nil
}

func (r *Registrar) logInfo(ctx context.Context, message string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info(message, args...)
}
