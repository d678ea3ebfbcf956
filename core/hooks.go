package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ReceiptsSuffix namespaces the registration the engine creates on the
// platform so it never collides with the caller's own hook.
const ReceiptsSuffix = ":receipts"

type IdentityMode string

const (
	IdentityModeOff     IdentityMode = "off"
	IdentityModeBuiltin IdentityMode = "builtin"
	IdentityModeCustom  IdentityMode = "custom"
)

func ParseIdentityMode(value string) (IdentityMode, error) {
	switch IdentityMode(strings.TrimSpace(strings.ToLower(value))) {
	case IdentityModeOff, "":
		return IdentityModeOff, nil
	case IdentityModeBuiltin:
		return IdentityModeBuiltin, nil
	case IdentityModeCustom:
		return IdentityModeCustom, nil
	default:
		return "", fmt.Errorf("core: unknown identity mode %q", value)
	}
}

// HookConfig is an immutable webhook registration: a unique name, the
// inbound path, and the platform event types it subscribes to.
type HookConfig struct {
	Name   string
	Path   string
	Events []string
	Secret string
}

func (c HookConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("core: hook name is required")
	}
	if strings.Contains(c.Name, ":") {
		return fmt.Errorf("core: hook name %q must not contain %q", c.Name, ":")
	}
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("core: hook path is required")
	}
	return nil
}

type ReceiptOptions struct {
	// Delay is the wall-clock window between a sent event and the
	// re-check, already normalized from config input.
	Delay           time.Duration
	WatchedStatuses StatusSet
	IdentityMode    IdentityMode
	// Resolver is required when IdentityMode is custom.
	Resolver IdentityResolver
}

// ReceiptHookConfig is explicitly derived from a HookConfig; the base
// hook is never mutated into the receipts shape in place.
type ReceiptHookConfig struct {
	base HookConfig
	opts ReceiptOptions
}

// WithReceipts derives the receipt-tracking variant of the hook.
func (c HookConfig) WithReceipts(opts ReceiptOptions) (ReceiptHookConfig, error) {
	if err := c.Validate(); err != nil {
		return ReceiptHookConfig{}, err
	}
	if opts.Delay <= 0 {
		return ReceiptHookConfig{}, fmt.Errorf("core: receipt delay must be positive")
	}
	if len(opts.WatchedStatuses) == 0 {
		return ReceiptHookConfig{}, fmt.Errorf("core: at least one watched status is required")
	}
	mode := opts.IdentityMode
	if mode == "" {
		mode = IdentityModeOff
	}
	if mode == IdentityModeCustom && opts.Resolver == nil {
		return ReceiptHookConfig{}, fmt.Errorf("core: custom identity mode requires a resolver")
	}
	opts.IdentityMode = mode
	return ReceiptHookConfig{base: c, opts: opts}, nil
}

// Name is the namespaced registration name used on the platform.
func (c ReceiptHookConfig) Name() string {
	return c.base.Name + ReceiptsSuffix
}

// OriginalName keys downstream notification jobs and the snapshot
// store namespace.
func (c ReceiptHookConfig) OriginalName() string {
	return c.base.Name
}

func (c ReceiptHookConfig) Path() string         { return c.base.Path }
func (c ReceiptHookConfig) Secret() string       { return c.base.Secret }
func (c ReceiptHookConfig) Delay() time.Duration { return c.opts.Delay }
func (c ReceiptHookConfig) WatchedStatuses() StatusSet {
	return c.opts.WatchedStatuses
}
func (c ReceiptHookConfig) IdentityMode() IdentityMode { return c.opts.IdentityMode }
func (c ReceiptHookConfig) Resolver() IdentityResolver { return c.opts.Resolver }

func (c ReceiptHookConfig) Events() []string {
	return append([]string(nil), c.base.Events...)
}

// MatchesTarget reports whether an event's target-webhook identity
// belongs to this hook: the original name, the registered receipts
// name, or any other namespaced variant <name>:<suffix>.
func (c ReceiptHookConfig) MatchesTarget(target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	name := c.OriginalName()
	return target == name || strings.HasPrefix(target, name+":")
}

// HookRegistry resolves an inbound delivery to its receipt hook by the
// original hook name.
type HookRegistry interface {
	Register(hook ReceiptHookConfig) error
	Get(name string) (ReceiptHookConfig, bool)
	List() []ReceiptHookConfig
}

type hookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]ReceiptHookConfig
}

func NewHookRegistry() HookRegistry {
	return &hookRegistry{hooks: map[string]ReceiptHookConfig{}}
}

func (r *hookRegistry) Register(hook ReceiptHookConfig) error {
	if r == nil {
		return fmt.Errorf("core: hook registry is nil")
	}
	name := hook.OriginalName()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("core: hook name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[name]; exists {
		return fmt.Errorf("core: hook %q is already registered", name)
	}
	r.hooks[name] = hook
	return nil
}

func (r *hookRegistry) Get(name string) (ReceiptHookConfig, bool) {
	if r == nil {
		return ReceiptHookConfig{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.hooks[strings.TrimSpace(name)]
	return hook, ok
}

func (r *hookRegistry) List() []ReceiptHookConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ReceiptHookConfig, 0, len(names))
	for _, name := range names {
		out = append(out, r.hooks[name])
	}
	return out
}
