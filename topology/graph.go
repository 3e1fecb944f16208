// Package topology models the server network as an undirected graph. Routing
// between servers is hop-count shortest path; reachability exploration is
// depth-first. The graph carries identifiers only, no connection state.
package topology

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/logger"
	"github.com/palomarmail/palomar/pkg/metrics"
)

// Graph is an undirected server graph. An RWMutex guards the adjacency map:
// admin endpoints add servers and links while route lookups read.
type Graph struct {
	mu       sync.RWMutex
	adjacent map[string]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{adjacent: make(map[string]map[string]struct{})}
}

// AddServer registers a server identifier.
// Returns ErrServerExists when the identifier is already registered.
func (g *Graph) AddServer(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("server id cannot be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.adjacent[id]; ok {
		return fmt.Errorf("%w: %q", consts.ErrServerExists, id)
	}
	g.adjacent[id] = make(map[string]struct{})
	metrics.ServersTotal.Set(float64(len(g.adjacent)))

	logger.Info("Topology: registered server", "server", id)
	return nil
}

// AddLink creates a symmetric link between two registered servers. Adding an
// existing link is a no-op, as is linking a server to itself.
// Returns ErrServerUnknown when either endpoint is not registered.
func (g *Graph) AddLink(a, b string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.adjacent[a]; !ok {
		return fmt.Errorf("%w: %q", consts.ErrServerUnknown, a)
	}
	if _, ok := g.adjacent[b]; !ok {
		return fmt.Errorf("%w: %q", consts.ErrServerUnknown, b)
	}
	if a == b {
		return nil
	}
	if _, ok := g.adjacent[a][b]; ok {
		return nil
	}

	g.adjacent[a][b] = struct{}{}
	g.adjacent[b][a] = struct{}{}

	logger.Info("Topology: linked servers", "a", a, "b", b)
	return nil
}

// HasServer reports whether the identifier is registered.
func (g *Graph) HasServer(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adjacent[id]
	return ok
}

// Servers returns all registered identifiers in sorted order.
func (g *Graph) Servers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.adjacent))
	for id := range g.adjacent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Neighbors returns the servers directly linked to id, in sorted order.
// Returns ErrServerUnknown when id is not registered.
func (g *Graph) Neighbors(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	links, ok := g.adjacent[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", consts.ErrServerUnknown, id)
	}
	return sortedKeys(links), nil
}

// ShortestPath returns the fewest-hops path from source to target, both
// endpoints included. Neighbors are expanded in sorted order so equal-length
// ties resolve deterministically. When source equals target the path is the
// single node. Returns ErrServerUnknown when either endpoint is not
// registered and ErrServerUnreachable when no path exists.
func (g *Graph) ShortestPath(source, target string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.adjacent[source]; !ok {
		metrics.RouteComputations.WithLabelValues("unknown_server").Inc()
		return nil, fmt.Errorf("%w: %q", consts.ErrServerUnknown, source)
	}
	if _, ok := g.adjacent[target]; !ok {
		metrics.RouteComputations.WithLabelValues("unknown_server").Inc()
		return nil, fmt.Errorf("%w: %q", consts.ErrServerUnknown, target)
	}

	if source == target {
		metrics.RouteComputations.WithLabelValues("found").Inc()
		metrics.RouteHops.Observe(1)
		return []string{source}, nil
	}

	// Breadth-first search; prev records the tree for path reconstruction.
	prev := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range sortedKeys(g.adjacent[current]) {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = current
			if next == target {
				path := reconstructPath(prev, source, target)
				metrics.RouteComputations.WithLabelValues("found").Inc()
				metrics.RouteHops.Observe(float64(len(path)))
				return path, nil
			}
			queue = append(queue, next)
		}
	}

	metrics.RouteComputations.WithLabelValues("unreachable").Inc()
	return nil, fmt.Errorf("%w: %q -> %q", consts.ErrServerUnreachable, source, target)
}

// ExploreFrom returns a lazy depth-first pre-order sequence of every server
// reachable from start, start itself first. Each server appears exactly once
// even when the graph contains cycles; neighbors are descended in sorted
// order. The sequence is restartable and holds a read lock while it runs, so
// the graph must not be mutated from inside the loop.
// Returns ErrServerUnknown when start is not registered.
func (g *Graph) ExploreFrom(start string) (iter.Seq[string], error) {
	g.mu.RLock()
	_, ok := g.adjacent[start]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", consts.ErrServerUnknown, start)
	}

	return func(yield func(string) bool) {
		g.mu.RLock()
		defer g.mu.RUnlock()

		if _, ok := g.adjacent[start]; !ok {
			return
		}
		visited := make(map[string]struct{})
		g.explore(start, visited, yield)
	}, nil
}

func (g *Graph) explore(id string, visited map[string]struct{}, yield func(string) bool) bool {
	visited[id] = struct{}{}
	if !yield(id) {
		return false
	}
	for _, next := range sortedKeys(g.adjacent[id]) {
		if _, seen := visited[next]; seen {
			continue
		}
		if !g.explore(next, visited, yield) {
			return false
		}
	}
	return true
}

func reconstructPath(prev map[string]string, source, target string) []string {
	var path []string
	for current := target; current != ""; current = prev[current] {
		path = append(path, current)
		if current == source {
			break
		}
	}
	// path was built target-first
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
