package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_SingleCoroutineRunsToCompletion(t *testing.T) {
	d, rootCtx := newDispatcher(nil, func(ctx Context) {})
	require.NoError(t, d.ExecuteUntilAllBlocked())
	require.True(t, d.IsDone())
	_ = rootCtx
}

func TestDispatcher_CoroutineBlocksOnChannelReceive(t *testing.T) {
	var ch Channel
	var received interface{}
	d, _ := newDispatcher(nil, func(ctx Context) {
		ch = NewChannel(ctx)
		Go(ctx, func(ctx Context) {
			ch.Receive(ctx, &received)
		})
	})

	require.NoError(t, d.ExecuteUntilAllBlocked())
	require.False(t, d.IsDone())

	ch.SendAsync("hello")
	require.NoError(t, d.ExecuteUntilAllBlocked())
	require.True(t, d.IsDone())
	require.Equal(t, "hello", received)
}

func TestChannel_BufferedAllowsSendsUpToCapacityWithoutReceiver(t *testing.T) {
	d, rootCtx := newDispatcher(nil, func(ctx Context) {})
	require.NoError(t, d.ExecuteUntilAllBlocked())

	ch := NewBufferedChannel(rootCtx, 2)
	require.True(t, ch.SendAsync(1))
	require.True(t, ch.SendAsync(2))
	require.False(t, ch.SendAsync(3))
}

func TestChannel_CloseSignalsNoMoreValues(t *testing.T) {
	ch := &channelImpl{}
	ch.SendAsync("only")
	ch.Close()

	var v interface{}
	ok, more := ch.ReceiveAsyncWithMoreFlag(&v)
	require.True(t, ok)
	require.True(t, more)
	require.Equal(t, "only", v)

	ok, more = ch.ReceiveAsyncWithMoreFlag(&v)
	require.False(t, ok)
	require.False(t, more)
}

func TestDispatcher_PanicInCoroutineIsReportedAsError(t *testing.T) {
	d, _ := newDispatcher(nil, func(ctx Context) {
		panic("boom")
	})

	err := d.ExecuteUntilAllBlocked()
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestSelector_PrefersReadyReceiveOverDefault(t *testing.T) {
	var winner string
	d, rootCtx := newDispatcher(nil, func(ctx Context) {})
	require.NoError(t, d.ExecuteUntilAllBlocked())

	a := NewBufferedChannel(rootCtx, 1)
	b := NewBufferedChannel(rootCtx, 1)
	a.SendAsync("a-value")

	sel := NewSelector(rootCtx)
	sel.AddReceive(a, func(c Channel, more bool) {
		var v interface{}
		c.ReceiveAsync(&v)
		winner = "a:" + v.(string)
	})
	sel.AddReceive(b, func(c Channel, more bool) {
		winner = "b"
	})
	sel.AddDefault(func() {
		winner = "default"
	})

	sel.Select(rootCtx)
	require.Equal(t, "a:a-value", winner)
}

func TestSelector_FallsBackToDefaultWhenNothingReady(t *testing.T) {
	var winner string
	d, rootCtx := newDispatcher(nil, func(ctx Context) {})
	require.NoError(t, d.ExecuteUntilAllBlocked())

	a := NewBufferedChannel(rootCtx, 1)

	sel := NewSelector(rootCtx)
	sel.AddReceive(a, func(c Channel, more bool) {
		winner = "a"
	})
	sel.AddDefault(func() {
		winner = "default"
	})

	sel.Select(rootCtx)
	require.Equal(t, "default", winner)
}

func TestSelector_BlocksUntilChannelBecomesReady(t *testing.T) {
	var winner string
	var ch Channel
	d, _ := newDispatcher(nil, func(ctx Context) {
		ch = NewChannel(ctx)
		Go(ctx, func(ctx Context) {
			sel := NewSelector(ctx)
			sel.AddReceive(ch, func(c Channel, more bool) {
				var v interface{}
				c.ReceiveAsync(&v)
				winner = v.(string)
			})
			sel.Select(ctx)
		})
	})

	require.NoError(t, d.ExecuteUntilAllBlocked())
	require.False(t, d.IsDone())

	ch.SendAsync("late")
	require.NoError(t, d.ExecuteUntilAllBlocked())
	require.True(t, d.IsDone())
	require.Equal(t, "late", winner)
}
