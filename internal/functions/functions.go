// Package functions is the named RPC surface behind POST /api/functions/{name}.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	NameGenerate         = "generate"
	NameDeleteOwnAccount = "delete_own_account"
)

var ErrUnknownFunction = errors.New("unknown function")

// Error is a failure reported by a function that ran. It is distinct from
// transport or infrastructure failures, which are returned as plain errors.
type Error struct {
	Function string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Function, e.Message)
}

func failf(function, format string, args ...any) error {
	return &Error{Function: function, Message: fmt.Sprintf(format, args...)}
}

// Caller identifies the authenticated user invoking a function.
type Caller struct {
	UserID   string
	UserName string
}

// Func runs a function with the caller's JSON body.
type Func func(ctx context.Context, caller Caller, body json.RawMessage) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named function. An empty body is passed as "{}".
func (r *Registry) Invoke(ctx context.Context, name string, caller Caller, body json.RawMessage) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	return fn(ctx, caller, body)
}
