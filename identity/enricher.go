package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-receipts/core"
)

// Enricher resolves identity records for a notification's sender and
// recipients. All ids are resolved concurrently and the call joins on
// the slowest lookup; a failed lookup yields a nil record for that id
// only, so one outage never blocks notification for the rest.
type Enricher struct {
	directory core.DirectoryClient
	logger    core.Logger
}

type Config struct {
	Directory core.DirectoryClient
	Logger    core.Logger
}

func NewEnricher(cfg Config) *Enricher {
	return &Enricher{
		directory: cfg.Directory,
		logger:    cfg.Logger,
	}
}

var _ core.Enricher = (*Enricher)(nil)

func (e *Enricher) Enrich(
	ctx context.Context,
	hook core.ReceiptHookConfig,
	senderID string,
	recipientIDs []string,
) map[string]*core.IdentityRecord {
	if e == nil {
		return map[string]*core.IdentityRecord{}
	}

	resolver := e.resolverFor(hook)
	if resolver == nil {
		return map[string]*core.IdentityRecord{}
	}

	ids := collectIDs(senderID, recipientIDs)
	if len(ids) == 0 {
		return map[string]*core.IdentityRecord{}
	}

	out := make(map[string]*core.IdentityRecord, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			record, err := resolver(ctx, userID)
			if err != nil {
				e.logLookupFailure(ctx, hook.OriginalName(), userID, err)
				record = nil
			}
			mu.Lock()
			out[userID] = record
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

func (e *Enricher) resolverFor(hook core.ReceiptHookConfig) core.IdentityResolver {
	switch hook.IdentityMode() {
	case core.IdentityModeCustom:
		return hook.Resolver()
	case core.IdentityModeBuiltin:
		directory := e.directory
		if directory == nil {
			return nil
		}
		return func(ctx context.Context, userID string) (*core.IdentityRecord, error) {
			record, err := directory.Lookup(ctx, userID)
			if err != nil {
				return nil, err
			}
			return &record, nil
		}
	default:
		return nil
	}
}

func (e *Enricher) logLookupFailure(ctx context.Context, hookName string, userID string, err error) {
	if e == nil || e.logger == nil {
		return
	}
	logger := e.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("identity lookup failed",
		"hook_name", hookName, "user_id", userID, "error", err.Error())
}

// collectIDs returns {sender} followed by recipients, deduplicated,
// preserving recipient order.
func collectIDs(senderID string, recipientIDs []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(recipientIDs)+1)
	appendID := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	appendID(senderID)
	for _, id := range recipientIDs {
		appendID(id)
	}
	return out
}
