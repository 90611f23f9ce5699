// Package cluster keeps the broker's view of which nodes can serve queries.
package cluster

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tuannm99/novagather/internal/gather"
)

// ChangeKind names the piece of cluster state that changed.
type ChangeKind int

const (
	// ExternalView: the set of instances serving the table changed.
	ExternalView ChangeKind = iota + 1
	// InstanceConfig: an instance was added, removed, enabled or disabled.
	InstanceConfig
	// LiveInstance: an instance joined or left the cluster.
	LiveInstance
)

func (k ChangeKind) String() string {
	switch k {
	case ExternalView:
		return "EXTERNAL_VIEW"
	case InstanceConfig:
		return "INSTANCE_CONFIG"
	case LiveInstance:
		return "LIVE_INSTANCE"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// ChangeHandler is notified by the membership subsystem whenever routing
// relevant state changes.
type ChangeHandler interface {
	ProcessClusterChange(kind ChangeKind)
}

// Instance is the configured identity of one server.
type Instance struct {
	ID      string
	Addr    string
	Enabled bool
}

// Source reads current cluster state. Each method backs one ChangeKind.
type Source interface {
	// ExternalView returns the ids of instances serving the table.
	ExternalView() ([]string, error)
	InstanceConfigs() ([]Instance, error)
	LiveInstances() ([]string, error)
}

type state struct {
	serving map[string]bool
	configs map[string]Instance
	live    map[string]bool
	nodes   []gather.Node
}

// RoutingTable answers gather.NodeSource from the last state read for each
// ChangeKind. Readers never block; refreshes are serialized.
type RoutingTable struct {
	src    Source
	logger *slog.Logger

	mu   sync.Mutex
	snap atomic.Pointer[state]
}

var (
	_ ChangeHandler     = (*RoutingTable)(nil)
	_ gather.NodeSource = (*RoutingTable)(nil)
)

func NewRoutingTable(src Source, logger *slog.Logger) *RoutingTable {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &RoutingTable{src: src, logger: logger}
	rt.snap.Store(&state{})
	return rt
}

// Refresh reloads every kind of state.
func (rt *RoutingTable) Refresh() error {
	for _, k := range []ChangeKind{InstanceConfig, LiveInstance, ExternalView} {
		if err := rt.apply(k); err != nil {
			return err
		}
	}
	return nil
}

// ProcessClusterChange reloads the state behind kind. On a read failure the
// previous state is kept.
func (rt *RoutingTable) ProcessClusterChange(kind ChangeKind) {
	if err := rt.apply(kind); err != nil {
		rt.logger.Warn("cluster: refresh failed, keeping previous routing", "kind", kind, "err", err)
		return
	}
	rt.logger.Debug("cluster: routing updated", "kind", kind, "nodes", len(rt.Nodes()))
}

func (rt *RoutingTable) apply(kind ChangeKind) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	old := rt.snap.Load()
	next := *old

	switch kind {
	case ExternalView:
		ids, err := rt.src.ExternalView()
		if err != nil {
			return fmt.Errorf("cluster: external view: %w", err)
		}
		next.serving = toSet(ids)
	case InstanceConfig:
		insts, err := rt.src.InstanceConfigs()
		if err != nil {
			return fmt.Errorf("cluster: instance configs: %w", err)
		}
		next.configs = make(map[string]Instance, len(insts))
		for _, in := range insts {
			next.configs[in.ID] = in
		}
	case LiveInstance:
		ids, err := rt.src.LiveInstances()
		if err != nil {
			return fmt.Errorf("cluster: live instances: %w", err)
		}
		next.live = toSet(ids)
	default:
		return fmt.Errorf("cluster: unknown change kind %s", kind)
	}

	next.nodes = routable(&next)
	rt.snap.Store(&next)
	return nil
}

// Nodes returns instances that are serving, live and enabled, sorted by id.
func (rt *RoutingTable) Nodes() []gather.Node {
	return slices.Clone(rt.snap.Load().nodes)
}

func routable(s *state) []gather.Node {
	var out []gather.Node
	for id := range s.serving {
		in, ok := s.configs[id]
		if !ok || !in.Enabled || !s.live[id] {
			continue
		}
		out = append(out, gather.Node{ID: id, Addr: in.Addr})
	}
	slices.SortFunc(out, func(a, b gather.Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// StaticSource serves a fixed instance list where every instance is live,
// enabled and serving.
type StaticSource []Instance

func (s StaticSource) ExternalView() ([]string, error)      { return s.ids(), nil }
func (s StaticSource) InstanceConfigs() ([]Instance, error) { return s, nil }
func (s StaticSource) LiveInstances() ([]string, error)     { return s.ids(), nil }

func (s StaticSource) ids() []string {
	out := make([]string, len(s))
	for i, in := range s {
		out[i] = in.ID
	}
	return out
}
