package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
)

func TestNewTaggedScope_DefaultsNilScope(t *testing.T) {
	scope := NewTaggedScope(nil)
	require.NotNil(t, scope.Scope)
}

func TestTaggedScope_RecordLatencyTracksPercentiles(t *testing.T) {
	scope := NewTaggedScope(nil)

	scope.RecordLatency("activation_process", 10*time.Millisecond)
	scope.RecordLatency("activation_process", 20*time.Millisecond)
	scope.RecordLatency("activation_process", 30*time.Millisecond)

	p100 := scope.LatencyPercentile(100)
	require.GreaterOrEqual(t, p100, 29*time.Millisecond)
}

func TestTagScope_OddKeysDefaultToUnknown(t *testing.T) {
	root := tally.NewTestScope("", nil)

	tagged := TagScope(root, "task_queue", "orders", "dangling_key")

	require.NotNil(t, tagged)
	tagged.Counter("calls").Inc(1)
	counters := root.Snapshot().Counters()
	require.Len(t, counters, 1)
	for _, c := range counters {
		require.Equal(t, "orders", c.Tags()["task_queue"])
		require.Equal(t, unknownTagValue, c.Tags()["dangling_key"])
	}
}

func TestTagScope_DefaultsNilScope(t *testing.T) {
	tagged := TagScope(nil, "task_queue", "orders")
	require.NotNil(t, tagged)
}
