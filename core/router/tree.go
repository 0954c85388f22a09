package router

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/searchktools/poolserver/core/http"
)

type nodeType uint8

const (
	static   nodeType = iota // default
	param                    // :param
	catchAll                 // *param
)

// node is one path segment of a wildcard pattern
type node struct {
	nType     nodeType
	segment   string
	paramName string // for :param or *param nodes

	children map[string]*node // static children by segment
	param    *node
	catchAll *node

	routes map[http.Method]Route
}

func newNode() *node {
	return &node{}
}

func (n *node) insert(route Route) error {
	segments := splitPath(route.Pattern)

	for i, seg := range segments {
		kind, name, err := parseSegment(seg)
		if err != nil {
			return errors.Wrapf(err, "pattern %q", route.Pattern)
		}

		switch kind {
		case static:
			child, ok := n.children[seg]
			if !ok {
				if n.children == nil {
					n.children = make(map[string]*node)
				}
				child = &node{segment: seg}
				n.children[seg] = child
			}
			n = child

		case param:
			if n.param == nil {
				n.param = &node{nType: param, segment: seg, paramName: name}
			} else if n.param.paramName != name {
				return errors.Wrapf(ErrInvalidPattern,
					"pattern %q: parameter %q conflicts with %q", route.Pattern, seg, n.param.segment)
			}
			n = n.param

		case catchAll:
			if i != len(segments)-1 {
				return errors.Wrapf(ErrInvalidPattern,
					"pattern %q: catch-all routes are only allowed at the end of the path", route.Pattern)
			}
			if n.catchAll == nil {
				n.catchAll = &node{nType: catchAll, segment: seg, paramName: name}
			} else if n.catchAll.paramName != name {
				return errors.Wrapf(ErrInvalidPattern,
					"pattern %q: catch-all %q conflicts with %q", route.Pattern, seg, n.catchAll.segment)
			}
			n = n.catchAll
		}
	}

	if n.routes == nil {
		n.routes = make(map[http.Method]Route)
	}
	if existing, ok := n.routes[route.Method]; ok {
		return &DuplicateRouteError{Method: route.Method, Pattern: existing.Pattern}
	}
	n.routes[route.Method] = route
	return nil
}

func (n *node) lookup(method http.Method, path string) (Match, bool) {
	var values []string
	leaf := n.match(method, splitPath(path), &values)
	if leaf == nil {
		return Match{}, false
	}

	route := leaf.routes[method]
	return Match{Route: route, Params: bindParams(route.Pattern, values)}, true
}

// match walks the remaining segments, backtracking from static to param to
// catch-all children. Captured values are appended to values in path order.
func (n *node) match(method http.Method, segments []string, values *[]string) *node {
	if len(segments) == 0 {
		if _, ok := n.routes[method]; ok {
			return n
		}
		return nil
	}

	seg, rest := segments[0], segments[1:]

	if child, ok := n.children[seg]; ok {
		if leaf := child.match(method, rest, values); leaf != nil {
			return leaf
		}
	}

	if n.param != nil && seg != "" {
		mark := len(*values)
		*values = append(*values, seg)
		if leaf := n.param.match(method, rest, values); leaf != nil {
			return leaf
		}
		*values = (*values)[:mark]
	}

	if n.catchAll != nil {
		if _, ok := n.catchAll.routes[method]; ok {
			*values = append(*values, strings.Join(segments, "/"))
			return n.catchAll
		}
	}

	return nil
}

// bindParams pairs captured values with the wildcard names of pattern
func bindParams(pattern string, values []string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	params := make(map[string]string, len(values))
	i := 0
	for _, seg := range splitPath(pattern) {
		if i == len(values) {
			break
		}
		if kind, name, _ := parseSegment(seg); kind != static {
			params[name] = values[i]
			i++
		}
	}
	return params
}

// parseSegment classifies a pattern segment
func parseSegment(seg string) (nodeType, string, error) {
	if seg == "" {
		return static, "", nil
	}

	var kind nodeType
	switch seg[0] {
	case ':':
		kind = param
	case '*':
		kind = catchAll
	default:
		if strings.ContainsAny(seg, ":*") {
			return static, "", errors.Wrapf(ErrInvalidPattern, "wildcard must span the whole segment in %q", seg)
		}
		return static, "", nil
	}

	name := seg[1:]
	if name == "" {
		return kind, "", errors.Wrap(ErrInvalidPattern, "wildcards must be named")
	}
	if strings.ContainsAny(name, ":*") {
		return kind, "", errors.Wrap(ErrInvalidPattern, "only one wildcard per path segment is allowed")
	}
	return kind, name, nil
}

// splitPath splits "/a/b" into ["a", "b"]; "/" yields [""]
func splitPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}
