package webhook

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-receipts/core"
)

// VerificationChallengeParam is the query parameter the platform sends
// when probing a newly registered webhook endpoint.
const VerificationChallengeParam = "verification_challenge"

// Processor is the transport-agnostic inbound boundary: it answers
// verification challenges, enforces signature authenticity, routes the
// event, and hands accepted events to the tracking engine.
//
// Status mapping for the platform:
//
//	200 accepted, bot echo, or challenge
//	400 foreign hook or malformed payload
//	403 signature mismatch
//	500 transient processing failure (the platform redelivers)
type Processor struct {
	service  *core.Service
	verifier *Verifier
}

func NewProcessor(service *core.Service) (*Processor, error) {
	if service == nil {
		return nil, core.InternalError("webhook: processor requires a service", nil)
	}
	return &Processor{service: service, verifier: NewVerifier()}, nil
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.service == nil {
		return core.InboundResult{}, core.InternalError("webhook: processor is nil", nil)
	}

	// GET requests never carry a signed payload. Echo the challenge
	// when the platform sends one, otherwise answer with an empty 200.
	if strings.EqualFold(strings.TrimSpace(req.Method), http.MethodGet) {
		challenge := queryValue(req.Query, VerificationChallengeParam)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Body:       challenge,
			Metadata:   map[string]any{"challenge": challenge != ""},
		}, nil
	}

	hook, ok := p.resolveHook(req)
	if !ok {
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
			}, core.ReceiptsError(
				"webhook: no registered hook for delivery",
				goerrors.CategoryNotFound,
				http.StatusBadRequest,
				core.ReceiptsErrorHookNotFound,
				map[string]any{"hook_name": req.HookName, "path": req.Path},
			)
	}

	provided := headerValue(req.Headers, SignatureHeader)
	if !p.verifier.Verify(req.Body, hook.Secret(), provided) {
		p.logSignatureMismatch(ctx, hook, req.Body, provided)
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusForbidden,
				Metadata:   map[string]any{"rejected": true},
			}, core.ReceiptsError(
				"webhook: signature verification failed",
				goerrors.CategoryAuth,
				http.StatusForbidden,
				core.ReceiptsErrorSignatureInvalid,
				map[string]any{"hook_name": hook.OriginalName()},
			)
	}

	event, err := core.DecodeEvent(req.Body)
	if err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
		}, core.BadInputError(err.Error(), map[string]any{"hook_name": hook.OriginalName()})
	}

	switch Route(hook, event) {
	case OutcomeIgnoredForeign:
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
				Metadata:   map[string]any{"outcome": string(OutcomeIgnoredForeign)},
			}, core.ReceiptsError(
				"webhook: delivery addressed to a foreign hook",
				goerrors.CategoryBadInput,
				http.StatusBadRequest,
				core.ReceiptsErrorForeignHook,
				map[string]any{"hook_name": hook.OriginalName(), "target": event.TargetName},
			)
	case OutcomeIgnoredBotEcho:
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"outcome": string(OutcomeIgnoredBotEcho)},
		}, nil
	}

	if err := p.service.TrackEvent(ctx, hook, event); err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
			Metadata:   map[string]any{"outcome": "failed"},
		}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   map[string]any{"outcome": string(OutcomeAccepted)},
	}, nil
}

// logSignatureMismatch records both signatures so operators can tell a
// wrong secret from a mangled payload. The secret itself never logs.
func (p *Processor) logSignatureMismatch(ctx context.Context, hook core.ReceiptHookConfig, payload []byte, provided string) {
	logger := p.service.Logger()
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("webhook signature mismatch",
		"hook_name", hook.OriginalName(),
		"computed_signature", ComputeSignature(payload, hook.Secret()),
		"provided_signature", provided,
	)
}

// resolveHook finds the hook by explicit name first, then by inbound
// path so one process can host several hooks behind one mux.
func (p *Processor) resolveHook(req core.InboundRequest) (core.ReceiptHookConfig, bool) {
	registry := p.service.Registry()
	if registry == nil {
		return core.ReceiptHookConfig{}, false
	}
	if name := strings.TrimSpace(req.HookName); name != "" {
		name = strings.TrimSuffix(name, core.ReceiptsSuffix)
		if hook, ok := registry.Get(name); ok {
			return hook, true
		}
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return core.ReceiptHookConfig{}, false
	}
	for _, hook := range registry.List() {
		if strings.EqualFold(strings.TrimRight(hook.Path(), "/"), strings.TrimRight(path, "/")) {
			return hook, true
		}
	}
	return core.ReceiptHookConfig{}, false
}

func queryValue(query map[string]string, key string) string {
	for existing, value := range query {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
