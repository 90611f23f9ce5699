package cluster

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novagather/internal/gather"
)

type fakeSource struct {
	mu      sync.Mutex
	serving []string
	configs []Instance
	live    []string
	fail    error
}

func (f *fakeSource) ExternalView() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serving, f.fail
}

func (f *fakeSource) InstanceConfigs() ([]Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs, f.fail
}

func (f *fakeSource) LiveInstances() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.fail
}

func (f *fakeSource) set(fn func(*fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func threeNodes() *fakeSource {
	return &fakeSource{
		serving: []string{"s3", "s1", "s2"},
		configs: []Instance{
			{ID: "s1", Addr: "h1:1", Enabled: true},
			{ID: "s2", Addr: "h2:1", Enabled: true},
			{ID: "s3", Addr: "h3:1", Enabled: true},
		},
		live: []string{"s1", "s2", "s3"},
	}
}

func TestRoutingTable_Refresh(t *testing.T) {
	rt := NewRoutingTable(threeNodes(), nil)
	require.Empty(t, rt.Nodes())

	require.NoError(t, rt.Refresh())
	require.Equal(t, []gather.Node{
		{ID: "s1", Addr: "h1:1"},
		{ID: "s2", Addr: "h2:1"},
		{ID: "s3", Addr: "h3:1"},
	}, rt.Nodes())
}

func TestRoutingTable_ProcessClusterChange(t *testing.T) {
	src := threeNodes()
	rt := NewRoutingTable(src, nil)
	require.NoError(t, rt.Refresh())

	src.set(func(f *fakeSource) { f.live = []string{"s1", "s3"} })
	// only the changed kind is reloaded
	rt.ProcessClusterChange(ExternalView)
	require.Len(t, rt.Nodes(), 3)

	rt.ProcessClusterChange(LiveInstance)
	require.Equal(t, []gather.Node{{ID: "s1", Addr: "h1:1"}, {ID: "s3", Addr: "h3:1"}}, rt.Nodes())

	src.set(func(f *fakeSource) { f.configs[0].Enabled = false })
	rt.ProcessClusterChange(InstanceConfig)
	require.Equal(t, []gather.Node{{ID: "s3", Addr: "h3:1"}}, rt.Nodes())

	src.set(func(f *fakeSource) { f.serving = []string{"s1"} })
	rt.ProcessClusterChange(ExternalView)
	require.Empty(t, rt.Nodes())
}

func TestRoutingTable_FailedRefreshKeepsRouting(t *testing.T) {
	src := threeNodes()
	rt := NewRoutingTable(src, nil)
	require.NoError(t, rt.Refresh())

	src.set(func(f *fakeSource) { f.fail = errors.New("zk down") })
	rt.ProcessClusterChange(LiveInstance)
	require.Len(t, rt.Nodes(), 3)
	require.ErrorContains(t, rt.Refresh(), "zk down")
}

func TestRoutingTable_UnknownKind(t *testing.T) {
	rt := NewRoutingTable(threeNodes(), nil)
	require.Error(t, rt.apply(ChangeKind(42)))
	require.Equal(t, "ChangeKind(42)", ChangeKind(42).String())
	require.Equal(t, "LIVE_INSTANCE", LiveInstance.String())
}

func TestRoutingTable_NodesIsACopy(t *testing.T) {
	rt := NewRoutingTable(threeNodes(), nil)
	require.NoError(t, rt.Refresh())
	n := rt.Nodes()
	n[0].Addr = "mutated"
	require.Equal(t, "h1:1", rt.Nodes()[0].Addr)
}

func TestRoutingTable_ConcurrentChanges(t *testing.T) {
	rt := NewRoutingTable(threeNodes(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rt.ProcessClusterChange(ChangeKind(i%3 + 1))
		}()
		go func() {
			defer wg.Done()
			_ = rt.Nodes()
		}()
	}
	wg.Wait()
	require.NoError(t, rt.Refresh())
	require.Len(t, rt.Nodes(), 3)
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{{ID: "a", Addr: "x:1", Enabled: true}, {ID: "b", Addr: "y:1", Enabled: true}}
	rt := NewRoutingTable(src, nil)
	require.NoError(t, rt.Refresh())
	require.Equal(t, []gather.Node{{ID: "a", Addr: "x:1"}, {ID: "b", Addr: "y:1"}}, rt.Nodes())
}
