// Package graph holds the listeners of a hive and routes events through them.
//
// Listeners form a DAG. A listener added without a chain is a root and
// receives every dispatched event; a listener chained to a name becomes a
// child of every listener already registered under that name and receives
// what those parents return. Filters restrict which topics a listener
// accepts; a filtered-out event stops at that listener.
//
// Each traversal keeps a visited set, so a listener reachable through several
// parents is invoked at most once per dispatched event.
//
// Graph is safe for concurrent Add, Notify, Setup and Teardown, and a
// listener is torn down at most once however many poisons reach it. Add must
// not be called from inside a listener hook. Listener hooks run on the
// calling goroutine, so concurrent Notify calls invoke them concurrently.
package graph

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
)

// NodeID identifies a listener inside one Graph.
type NodeID int

type node struct {
	id       NodeID
	name     string
	listener bee.Listener
	filters  map[string]struct{}
	children []NodeID
	tornDown atomic.Bool
}

// accepts reports whether topic passes the node's filters.
// An empty filter set accepts every topic, including none.
func (n *node) accepts(topic string) bool {
	if len(n.filters) == 0 {
		return true
	}
	_, ok := n.filters[topic]
	return ok
}

// Graph is an arena of listener nodes wired by chains.
type Graph struct {
	mu     sync.RWMutex
	nodes  []*node
	roots  []NodeID
	byName map[string][]NodeID

	reporter bee.Reporter
	spans    observability.SpanManager
}

// Option configures a Graph.
type Option func(*Graph)

// WithReporter sets where deliveries and lifecycle outcomes are reported.
func WithReporter(r bee.Reporter) Option {
	return func(g *Graph) {
		if r != nil {
			g.reporter = r
		}
	}
}

// WithSpans enables a delivery span around every listener invocation.
func WithSpans(s observability.SpanManager) Option {
	return func(g *Graph) {
		if s != nil {
			g.spans = s
		}
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		byName:   make(map[string][]NodeID),
		reporter: bee.NopReporter{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddOption configures how a listener is wired.
type AddOption func(*addOptions)

type addOptions struct {
	chain   []string
	filters []string
}

// WithChain makes the listener a child of every listener registered under
// any of names. Without a chain the listener is a root.
func WithChain(names ...string) AddOption {
	return func(o *addOptions) {
		o.chain = append(o.chain, names...)
	}
}

// WithFilters restricts the listener to events whose topic is one of topics.
func WithFilters(topics ...string) AddOption {
	return func(o *addOptions) {
		o.filters = append(o.filters, topics...)
	}
}

// Add registers l. Chain and filters are validated before the graph is
// changed; on error nothing is registered.
//
// A listener with an empty name is given a generated one.
func (g *Graph) Add(l bee.Listener, opts ...AddOption) (NodeID, error) {
	if l == nil {
		return -1, &bherrors.ConfigurationError{Field: "listener", Message: "listener cannot be nil"}
	}

	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	filters := make(map[string]struct{}, len(o.filters))
	for _, topic := range o.filters {
		if topic == "" {
			return -1, &bherrors.ConfigurationError{Field: "filters", Err: bherrors.ErrInvalidFilter}
		}
		filters[topic] = struct{}{}
	}

	name := l.Name()
	if strings.TrimSpace(name) == "" {
		name = "listener-" + uuid.NewString()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var parents []NodeID
	seen := make(map[NodeID]struct{})
	for _, target := range o.chain {
		if target == "" {
			return -1, &bherrors.ConfigurationError{Field: "chain", Err: bherrors.ErrInvalidChain}
		}
		ids, ok := g.byName[target]
		if !ok {
			return -1, &bherrors.ConfigurationError{
				Field:   "chain",
				Message: fmt.Sprintf("%s: %q", bherrors.ErrUnknownChain, target),
				Err:     bherrors.ErrUnknownChain,
			}
		}
		for _, id := range ids {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				parents = append(parents, id)
			}
		}
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &node{
		id:       id,
		name:     name,
		listener: l,
		filters:  filters,
	})
	g.byName[name] = append(g.byName[name], id)

	if len(parents) == 0 {
		g.roots = append(g.roots, id)
	}
	for _, p := range parents {
		g.nodes[p].children = append(g.nodes[p].children, id)
	}
	return id, nil
}

// Len returns the number of registered listeners.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Roots returns the listeners that receive dispatched events directly.
func (g *Graph) Roots() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]NodeID(nil), g.roots...)
}

// Children returns the listeners chained to id.
func (g *Graph) Children(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := g.get(id); n != nil {
		return append([]NodeID(nil), n.children...)
	}
	return nil
}

// Listener returns the listener registered as id.
func (g *Graph) Listener(id NodeID) (bee.Listener, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := g.get(id); n != nil {
		return n.listener, true
	}
	return nil, false
}

// Name returns the registered name of id.
func (g *Graph) Name(id NodeID) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := g.get(id); n != nil {
		return n.name
	}
	return ""
}

// Lookup returns every listener registered under name.
func (g *Graph) Lookup(name string) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]NodeID(nil), g.byName[name]...)
}

// TornDown reports whether id has been torn down since its last setup.
func (g *Graph) TornDown(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n := g.get(id); n != nil {
		return n.tornDown.Load()
	}
	return false
}

func (g *Graph) get(id NodeID) *node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Walk visits every listener once in depth-first pre-order from the roots.
// Returning false from fn stops the walk.
func (g *Graph) Walk(fn func(id NodeID, l bee.Listener) bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	g.preOrder(func(n *node) bool {
		return fn(n.id, n.listener)
	})
}

// preOrder walks from the roots with a visited set. Callers hold mu.
func (g *Graph) preOrder(fn func(n *node) bool) {
	visited := make([]bool, len(g.nodes))
	stack := make([]NodeID, 0, len(g.roots))
	for i := len(g.roots) - 1; i >= 0; i-- {
		stack = append(stack, g.roots[i])
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		n := g.nodes[id]
		if !fn(n) {
			return
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			if !visited[n.children[i]] {
				stack = append(stack, n.children[i])
			}
		}
	}
}

// postOrder walks the subtrees under starts, visiting children before their
// parents. visited is shared so repeated calls skip nodes already handled.
// Callers hold mu.
func (g *Graph) postOrder(starts []NodeID, visited []bool, fn func(n *node)) {
	type frame struct {
		id       NodeID
		expanded bool
	}

	stack := make([]frame, 0, len(starts))
	for i := len(starts) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: starts[i]})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.expanded {
			fn(g.nodes[top.id])
			continue
		}
		if visited[top.id] {
			continue
		}
		visited[top.id] = true

		stack = append(stack, frame{id: top.id, expanded: true})
		children := g.nodes[top.id].children
		for i := len(children) - 1; i >= 0; i-- {
			if !visited[children[i]] {
				stack = append(stack, frame{id: children[i]})
			}
		}
	}
}
