package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-receipts/core"
)

type trackedSnapshotStore struct {
	mu    sync.Mutex
	saved map[string]core.MessageSnapshot
}

func newTrackedSnapshotStore() *trackedSnapshotStore {
	return &trackedSnapshotStore{saved: map[string]core.MessageSnapshot{}}
}

func (s *trackedSnapshotStore) Save(_ context.Context, hookName, messageID string, snapshot core.MessageSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[hookName+"/"+messageID] = snapshot
	return nil
}

func (s *trackedSnapshotStore) Update(_ context.Context, hookName, messageID string, snapshot core.MessageSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hookName + "/" + messageID
	if _, ok := s.saved[key]; !ok {
		return false, nil
	}
	s.saved[key] = snapshot
	return true, nil
}

func (s *trackedSnapshotStore) Take(_ context.Context, hookName, messageID string) (core.MessageSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hookName + "/" + messageID
	snapshot, ok := s.saved[key]
	if !ok {
		return core.MessageSnapshot{}, false, nil
	}
	delete(s.saved, key)
	return snapshot, true, nil
}

func (s *trackedSnapshotStore) Delete(_ context.Context, hookName, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, hookName+"/"+messageID)
	return nil
}

type noopScheduler struct{ armed int }

func (s *noopScheduler) Arm(context.Context, string, string, time.Duration) error {
	s.armed++
	return nil
}

type capturingLogger struct {
	mu       sync.Mutex
	messages []string
	args     [][]any
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Error(message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
	l.args = append(l.args, args)
}

func (l *capturingLogger) WithContext(context.Context) core.Logger { return l }

func argsToMap(t *testing.T, args []any) map[string]any {
	t.Helper()
	if len(args)%2 != 0 {
		t.Fatalf("expected key-value log args, got %v", args)
	}
	out := map[string]any{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			t.Fatalf("expected string log key, got %v", args[i])
		}
		out[key] = args[i+1]
	}
	return out
}

type staticConfigProvider struct{}

func (staticConfigProvider) Load(_ context.Context, defaults core.Config) (core.Config, error) {
	return defaults, nil
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ core.Config, loaded core.Config, _ core.Config) (core.Config, error) {
	return loaded, nil
}

func newTestProcessor(t *testing.T, opts ...core.Option) (*Processor, *trackedSnapshotStore, *noopScheduler) {
	t.Helper()
	store := newTrackedSnapshotStore()
	scheduler := &noopScheduler{}
	opts = append([]core.Option{
		core.WithSnapshotStore(store),
		core.WithCheckScheduler(scheduler),
		core.WithConfigProvider(staticConfigProvider{}),
		core.WithOptionsResolver(passthroughResolver{}),
	}, opts...)
	service, err := core.NewService(core.DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	hook, err := core.HookConfig{Name: "orders", Path: "/hooks/orders", Secret: "s3cret"}.WithReceipts(core.ReceiptOptions{
		Delay:           10 * time.Minute,
		WatchedStatuses: core.NewStatusSet(core.StatusSent),
	})
	if err != nil {
		t.Fatalf("derive receipt hook: %v", err)
	}
	if err := service.RegisterHook(context.Background(), hook); err != nil {
		t.Fatalf("register hook: %v", err)
	}
	processor, err := NewProcessor(service)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return processor, store, scheduler
}

func sentEventBody(t *testing.T, messageID string, sender core.Participant, target string) []byte {
	t.Helper()
	body := map[string]any{
		"event": map[string]any{
			"type":       "message.sent",
			"created_at": "2026-04-09T16:00:00Z",
		},
		"message": map[string]any{
			"id":               messageID,
			"sender":           sender,
			"recipient_status": json.RawMessage(`{"u-a":"sent"}`),
		},
	}
	if target != "" {
		body["config"] = map[string]any{"name": target}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal event body: %v", err)
	}
	return encoded
}

func signedRequest(body []byte) core.InboundRequest {
	return core.InboundRequest{
		HookName: "orders",
		Method:   http.MethodPost,
		Path:     "/hooks/orders",
		Headers:  map[string]string{SignatureHeader: ComputeSignature(body, "s3cret")},
		Body:     body,
	}
}

func TestProcessAcceptsSignedSentEvent(t *testing.T) {
	processor, store, scheduler := newTestProcessor(t)
	body := sentEventBody(t, "msg-1", core.Participant{UserID: "u-send"}, "orders:receipts")

	result, err := processor.Process(context.Background(), signedRequest(body))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := store.saved["orders/msg-1"]; !ok {
		t.Fatalf("accepted event must be tracked")
	}
	if scheduler.armed != 1 {
		t.Fatalf("sent event must arm a check")
	}
}

func TestProcessAnswersVerificationChallenge(t *testing.T) {
	processor, _, _ := newTestProcessor(t)
	result, err := processor.Process(context.Background(), core.InboundRequest{
		HookName: "orders",
		Method:   http.MethodGet,
		Path:     "/hooks/orders",
		Query:    map[string]string{VerificationChallengeParam: "abc123"},
	})
	if err != nil {
		t.Fatalf("process challenge: %v", err)
	}
	if result.StatusCode != http.StatusOK || result.Body != "abc123" {
		t.Fatalf("challenge must be echoed, got %+v", result)
	}
}

func TestProcessAnswersBareGetWithEmptyBody(t *testing.T) {
	processor, store, scheduler := newTestProcessor(t)
	result, err := processor.Process(context.Background(), core.InboundRequest{
		HookName: "orders",
		Method:   http.MethodGet,
		Path:     "/hooks/orders",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.StatusCode != http.StatusOK || result.Body != "" {
		t.Fatalf("a GET without a challenge must get an empty 200, got %+v", result)
	}
	if len(store.saved) != 0 || scheduler.armed != 0 {
		t.Fatalf("a GET must not mutate state")
	}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	processor, store, _ := newTestProcessor(t)
	body := sentEventBody(t, "msg-1", core.Participant{UserID: "u-send"}, "")

	req := signedRequest(body)
	req.Headers[SignatureHeader] = "deadbeef"
	result, err := processor.Process(context.Background(), req)
	if err == nil {
		t.Fatalf("expected signature error")
	}
	if result.StatusCode != http.StatusForbidden {
		t.Fatalf("bad signature maps to 403, got %d", result.StatusCode)
	}
	if len(store.saved) != 0 {
		t.Fatalf("rejected delivery must not mutate state")
	}
}

func TestProcessLogsSignatureMismatchForDiagnosis(t *testing.T) {
	logger := &capturingLogger{}
	processor, _, _ := newTestProcessor(t, core.WithLogger(logger))
	body := sentEventBody(t, "msg-1", core.Participant{UserID: "u-send"}, "")

	req := signedRequest(body)
	req.Headers[SignatureHeader] = "deadbeef"
	if _, err := processor.Process(context.Background(), req); err == nil {
		t.Fatalf("expected signature error")
	}

	if len(logger.messages) != 1 {
		t.Fatalf("expected one mismatch log, got %d", len(logger.messages))
	}
	args := argsToMap(t, logger.args[0])
	if args["provided_signature"] != "deadbeef" {
		t.Fatalf("log must carry the provided signature, got %v", args["provided_signature"])
	}
	if args["computed_signature"] != ComputeSignature(body, "s3cret") {
		t.Fatalf("log must carry the computed signature, got %v", args["computed_signature"])
	}
	for _, value := range args {
		if value == "s3cret" {
			t.Fatalf("the shared secret must never be logged")
		}
	}
}

func TestProcessRejectsUnknownHook(t *testing.T) {
	processor, _, _ := newTestProcessor(t)
	body := sentEventBody(t, "msg-1", core.Participant{UserID: "u-send"}, "")
	result, err := processor.Process(context.Background(), core.InboundRequest{
		HookName: "ghost",
		Method:   http.MethodPost,
		Path:     "/hooks/ghost",
		Headers:  map[string]string{SignatureHeader: ComputeSignature(body, "s3cret")},
		Body:     body,
	})
	if err == nil {
		t.Fatalf("expected unknown hook error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown hook maps to 400, got %d", result.StatusCode)
	}
}

func TestProcessResolvesHookByPath(t *testing.T) {
	processor, store, _ := newTestProcessor(t)
	body := sentEventBody(t, "msg-2", core.Participant{UserID: "u-send"}, "")
	result, err := processor.Process(context.Background(), core.InboundRequest{
		Method:  http.MethodPost,
		Path:    "/hooks/orders/",
		Headers: map[string]string{SignatureHeader: ComputeSignature(body, "s3cret")},
		Body:    body,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("path-resolved delivery should be accepted: %+v", result)
	}
	if _, ok := store.saved["orders/msg-2"]; !ok {
		t.Fatalf("tracked state missing")
	}
}

func TestProcessIgnoresForeignDeliveryWith400(t *testing.T) {
	processor, store, _ := newTestProcessor(t)
	body := sentEventBody(t, "msg-1", core.Participant{UserID: "u-send"}, "billing:receipts")

	result, err := processor.Process(context.Background(), signedRequest(body))
	if err == nil {
		t.Fatalf("expected foreign hook error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("foreign delivery maps to 400, got %d", result.StatusCode)
	}
	if len(store.saved) != 0 {
		t.Fatalf("foreign delivery must not mutate state")
	}
}

func TestProcessSuppressesBotEchoWith200(t *testing.T) {
	processor, store, scheduler := newTestProcessor(t)
	body := sentEventBody(t, "msg-1", core.Participant{Name: "Broadcast Bot"}, "orders:receipts")

	result, err := processor.Process(context.Background(), signedRequest(body))
	if err != nil {
		t.Fatalf("bot echo is a success response, got %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.saved) != 0 || scheduler.armed != 0 {
		t.Fatalf("bot echo must not mutate state")
	}
}

func TestProcessRejectsMalformedBody(t *testing.T) {
	processor, _, _ := newTestProcessor(t)
	body := []byte(`{"event":{}}`)
	req := signedRequest(body)

	result, err := processor.Process(context.Background(), req)
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body maps to 400, got %d", result.StatusCode)
	}
}

func TestProcessResolvesNamespacedHookName(t *testing.T) {
	processor, store, _ := newTestProcessor(t)
	body := sentEventBody(t, "msg-3", core.Participant{UserID: "u-send"}, "")
	req := signedRequest(body)
	req.HookName = fmt.Sprintf("orders%s", core.ReceiptsSuffix)

	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("namespaced hook name should resolve: %+v", result)
	}
	if _, ok := store.saved["orders/msg-3"]; !ok {
		t.Fatalf("tracked state missing")
	}
}
