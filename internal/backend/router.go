package backend

import (
	"context"
	"sync"
)

// Router multiplexes by target name to a set of concrete backends, with
// a default for unmatched targets.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Backend
	fallback Backend
}

// NewRouter returns a Router whose unmatched targets fall through to
// fallback (which may be nil; in that case unmatched targets fail).
func NewRouter(fallback Backend) *Router {
	return &Router{backends: make(map[string]Backend), fallback: fallback}
}

// Register associates targetPrefix with backend. Longer prefixes are
// preferred when multiple registrations could match a target.
func (r *Router) Register(targetPrefix string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[targetPrefix] = backend
}

func (r *Router) resolve(target string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	var match Backend
	for prefix, b := range r.backends {
		if matchesPrefix(target, prefix) && len(prefix) > len(best) {
			best = prefix
			match = b
		}
	}
	if match != nil {
		return match, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, &Error{Message: "no backend registered for target " + target, Code: "unresolved_target"}
}

func matchesPrefix(target, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(target) < len(prefix) {
		return false
	}
	return target[:len(prefix)] == prefix
}

func (r *Router) ResolveTarget(ctx context.Context, target string) (TargetInfo, error) {
	b, err := r.resolve(target)
	if err != nil {
		return TargetInfo{}, err
	}
	return b.ResolveTarget(ctx, target)
}

func (r *Router) ListDiagnostics(ctx context.Context, target string) ([]DiagnosticInfo, error) {
	b, err := r.resolve(target)
	if err != nil {
		return nil, err
	}
	return b.ListDiagnostics(ctx, target)
}

func (r *Router) RunDiagnostic(ctx context.Context, action, target string, args map[string]any) (map[string]any, error) {
	b, err := r.resolve(target)
	if err != nil {
		return nil, err
	}
	return b.RunDiagnostic(ctx, action, target, args)
}

func (r *Router) RunShell(ctx context.Context, command, target string, opts ShellOptions) (ShellResult, error) {
	b, err := r.resolve(target)
	if err != nil {
		return ShellResult{}, err
	}
	return b.RunShell(ctx, command, target, opts)
}

var _ Backend = (*Router)(nil)
