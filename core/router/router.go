package router

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/searchktools/poolserver/core/http"
)

var (
	// ErrFrozen is returned by Register once the table is read-only
	ErrFrozen = errors.New("router is frozen")
	// ErrInvalidPattern is wrapped by Register for unusable patterns
	ErrInvalidPattern = errors.New("invalid route pattern")
)

// DuplicateRouteError is returned when a (method, pattern) pair is registered twice
type DuplicateRouteError struct {
	Method  http.Method
	Pattern string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("duplicate route: %s %s", e.Method, e.Pattern)
}

// Route binds a method and path pattern to a handler.
//
// Patterns are either exact paths ("/users") or contain named wildcards:
// ":name" matches one non-empty segment, "*name" matches the rest of the
// path and must be last.
type Route struct {
	Method  http.Method
	Pattern string
	Handler http.Handler
}

// Match is the result of a successful Resolve
type Match struct {
	Route  Route
	Params map[string]string
}

// Router maps (method, path) to handlers.
//
// Routes are registered from a single goroutine before Freeze. After Freeze
// the table never changes and Resolve is safe for concurrent use.
type Router struct {
	// Exact paths: path -> method -> route
	static map[string]map[http.Method]Route

	// Patterns with wildcards
	tree *node

	routes  []Route
	methods []http.Method
	frozen  atomic.Bool
}

// New creates an empty router
func New() *Router {
	return &Router{
		static: make(map[string]map[http.Method]Route),
		tree:   newNode(),
	}
}

// Register adds a route
func (r *Router) Register(method http.Method, pattern string, handler http.Handler) error {
	if r.frozen.Load() {
		return ErrFrozen
	}
	if !http.ValidMethod(string(method)) {
		return errors.Wrapf(ErrInvalidPattern, "invalid method %q", method)
	}
	if handler == nil {
		return errors.Wrapf(ErrInvalidPattern, "nil handler for %s %s", method, pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		return errors.Wrapf(ErrInvalidPattern, "%q must begin with '/'", pattern)
	}

	route := Route{Method: method, Pattern: pattern, Handler: handler}

	if !hasWildcard(pattern) {
		byMethod, ok := r.static[pattern]
		if !ok {
			byMethod = make(map[http.Method]Route)
			r.static[pattern] = byMethod
		}
		if _, exists := byMethod[method]; exists {
			return &DuplicateRouteError{Method: method, Pattern: pattern}
		}
		byMethod[method] = route
	} else if err := r.tree.insert(route); err != nil {
		return err
	}

	r.routes = append(r.routes, route)
	r.addMethod(method)
	return nil
}

// Handle is Register for a plain function
func (r *Router) Handle(method http.Method, pattern string, fn http.HandlerFunc) error {
	return r.Register(method, pattern, fn)
}

// Freeze makes the table read-only
func (r *Router) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called
func (r *Router) Frozen() bool {
	return r.frozen.Load()
}

// Resolve finds the route for method and path. An exact path always wins
// over a pattern; among patterns a static segment beats a parameter, which
// beats a catch-all.
func (r *Router) Resolve(method http.Method, path string) (Match, bool) {
	if byMethod, ok := r.static[path]; ok {
		if route, ok := byMethod[method]; ok {
			return Match{Route: route}, true
		}
	}

	if len(path) == 0 || path[0] != '/' {
		return Match{}, false
	}

	return r.tree.lookup(method, path)
}

// Allowed returns the methods under which path resolves, in registration order
func (r *Router) Allowed(path string) []http.Method {
	var allowed []http.Method
	for _, m := range r.methods {
		if _, ok := r.Resolve(m, path); ok {
			allowed = append(allowed, m)
		}
	}
	return allowed
}

// Routes returns all routes in registration order
func (r *Router) Routes() []Route {
	routes := make([]Route, len(r.routes))
	copy(routes, r.routes)
	return routes
}

// Len returns the number of registered routes
func (r *Router) Len() int {
	return len(r.routes)
}

func (r *Router) addMethod(method http.Method) {
	for _, m := range r.methods {
		if m == method {
			return
		}
	}
	r.methods = append(r.methods, method)
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, ":*")
}
