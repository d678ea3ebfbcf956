package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubSnapshotStore struct {
	mu       sync.Mutex
	saved    map[string]MessageSnapshot
	updates  []string
	deletes  []string
	takes    []string
	saveErr  error
	takeErr  error
	updErr   error
	delErr   error
	snapshot *MessageSnapshot
}

func newStubSnapshotStore() *stubSnapshotStore {
	return &stubSnapshotStore{saved: map[string]MessageSnapshot{}}
}

func (s *stubSnapshotStore) key(hookName, messageID string) string {
	return hookName + "/" + messageID
}

func (s *stubSnapshotStore) Save(_ context.Context, hookName, messageID string, snapshot MessageSnapshot) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[s.key(hookName, messageID)] = snapshot
	return nil
}

func (s *stubSnapshotStore) Update(_ context.Context, hookName, messageID string, snapshot MessageSnapshot) (bool, error) {
	if s.updErr != nil {
		return false, s.updErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(hookName, messageID)
	s.updates = append(s.updates, key)
	if _, ok := s.saved[key]; !ok {
		return false, nil
	}
	s.saved[key] = snapshot
	return true, nil
}

func (s *stubSnapshotStore) Take(_ context.Context, hookName, messageID string) (MessageSnapshot, bool, error) {
	if s.takeErr != nil {
		return MessageSnapshot{}, false, s.takeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(hookName, messageID)
	s.takes = append(s.takes, key)
	snapshot, ok := s.saved[key]
	if !ok {
		return MessageSnapshot{}, false, nil
	}
	delete(s.saved, key)
	return snapshot, true, nil
}

func (s *stubSnapshotStore) Delete(_ context.Context, hookName, messageID string) error {
	if s.delErr != nil {
		return s.delErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(hookName, messageID)
	s.deletes = append(s.deletes, key)
	delete(s.saved, key)
	return nil
}

type armedCheck struct {
	hookName  string
	messageID string
	delay     time.Duration
}

type stubScheduler struct {
	armed []armedCheck
	err   error
}

func (s *stubScheduler) Arm(_ context.Context, hookName, messageID string, delay time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.armed = append(s.armed, armedCheck{hookName: hookName, messageID: messageID, delay: delay})
	return nil
}

// stubPublisher fails the first `failures` calls with err; a negative
// failures count fails every call.
type stubPublisher struct {
	published []NotificationJob
	attempts  int
	failures  int
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, job NotificationJob) error {
	p.attempts++
	if p.failures < 0 || p.attempts <= p.failures {
		return p.err
	}
	p.published = append(p.published, job)
	return nil
}

type stubEnqueuer struct {
	messages []*JobExecutionMessage
	err      error
}

func (e *stubEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

type staticConfigProvider struct {
	cfg Config
}

func (p staticConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ Config, loaded Config, _ Config) (Config, error) {
	return loaded, nil
}

func newTestService(t *testing.T, store SnapshotStore, extra ...Option) *Service {
	t.Helper()
	options := append([]Option{
		WithSnapshotStore(store),
		WithConfigProvider(staticConfigProvider{cfg: DefaultConfig()}),
		WithOptionsResolver(passthroughResolver{}),
	}, extra...)
	service, err := NewService(DefaultConfig(), options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	service.sleep = func(context.Context, time.Duration) error { return nil }
	return service
}

func testReceiptHook(t *testing.T, watched ...Status) ReceiptHookConfig {
	t.Helper()
	if len(watched) == 0 {
		watched = []Status{StatusSent, StatusDelivered}
	}
	hook, err := HookConfig{
		Name:   "orders",
		Path:   "/hooks/orders",
		Events: []string{"message.sent", "message.delivered", "message.read", "message.deleted"},
		Secret: "s3cret",
	}.WithReceipts(ReceiptOptions{
		Delay:           10 * time.Minute,
		WatchedStatuses: NewStatusSet(watched...),
	})
	if err != nil {
		t.Fatalf("derive receipt hook: %v", err)
	}
	return hook
}

func messageEvent(eventType EventType, messageID string, recipients RecipientStatusList) Event {
	return Event{
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Message: &MessageSnapshot{
			ID:         messageID,
			Sender:     Participant{UserID: "sender-1"},
			Recipients: recipients,
		},
	}
}
