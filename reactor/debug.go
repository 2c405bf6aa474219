package reactor

import "fmt"

// NodeInfo is a point-in-time snapshot of one graph node's shape, exposed
// for tooling (cmd/graphviz) that wants to observe the dependency graph
// without reaching into package-private state.
type NodeInfo struct {
	ID       string
	Kind     string
	Stale    bool
	Disposed bool
	Deps     int
	Subs     int
}

func infoOf(n *node) NodeInfo {
	return NodeInfo{
		ID:       fmt.Sprintf("%x", n.id),
		Kind:     n.kind.String(),
		Stale:    n.stale,
		Disposed: n.disposed,
		Deps:     n.deps.Cardinality(),
		Subs:     n.subs.Cardinality(),
	}
}

// Info reports s's current node shape.
func (s *Signal[T]) Info() NodeInfo { return infoOf(s.n) }

// Info reports c's current node shape.
func (c *Computed[T]) Info() NodeInfo { return infoOf(c.n) }

// Info reports h's current node shape.
func (h *EffectHandle) Info() NodeInfo { return infoOf(h.n) }
