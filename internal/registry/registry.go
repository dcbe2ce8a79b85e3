// Package registry maps command names to their handlers. The registry is
// populated during startup and frozen before the daemon starts serving.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"wisp/internal/store"
	"wisp/internal/wisperr"
)

// Handler executes one command. Validate runs before dispatch and turns the
// raw payload into typed arguments; Execute only ever sees arguments that
// passed validation, together with the snapshot captured at submission.
type Handler interface {
	Validate(params json.RawMessage) (any, error)
	Execute(ctx context.Context, args any, snap *store.Snapshot) (any, error)
}

// Registry is the command table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a command name to its handler. Registering after Freeze or
// rebinding an existing name is a programmer error and panics.
func (r *Registry) Register(command string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		panic(fmt.Sprintf("registry: Register(%q) after Freeze", command))
	}
	if command == "" || h == nil {
		panic("registry: empty command or nil handler")
	}
	if _, dup := r.handlers[command]; dup {
		panic(fmt.Sprintf("registry: duplicate command %q", command))
	}
	r.handlers[command] = h
}

// Freeze closes the registry for registration. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns the handler for command, or NOT_FOUND.
func (r *Registry) Resolve(command string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[command]
	if !ok {
		return nil, wisperr.Newf(wisperr.NotFound, "unknown command %q", command)
	}
	return h, nil
}

// Commands returns the registered command names, sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
