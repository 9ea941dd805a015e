package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFireExpiredRunsInDeadlineOrder(t *testing.T) {
	q := NewQueue()
	base := time.Now()
	var order []int

	q.AddTimeout(base.Add(3*time.Millisecond), "c", func() { order = append(order, 3) })
	q.AddTimeout(base.Add(1*time.Millisecond), "a", func() { order = append(order, 1) })
	q.AddTimeout(base.Add(2*time.Millisecond), "b", func() { order = append(order, 2) })

	fired := q.FireExpired(base.Add(5 * time.Millisecond))
	require.Equal(t, 3, fired)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestAddTimeoutIsIdempotentOnOpaque(t *testing.T) {
	q := NewQueue()
	base := time.Now()
	calls := 0

	q.AddTimeout(base.Add(time.Millisecond), "x", func() { calls++ })
	q.AddTimeout(base.Add(2*time.Millisecond), "x", func() { calls++ })

	fired := q.FireExpired(base.Add(5 * time.Millisecond))
	require.Equal(t, 1, fired)
	require.Equal(t, 1, calls)
}

func TestCancelTimeout(t *testing.T) {
	q := NewQueue()
	base := time.Now()
	ran := false
	q.AddTimeout(base.Add(time.Millisecond), "y", func() { ran = true })
	require.True(t, q.CancelTimeout("y"))
	q.FireExpired(base.Add(5 * time.Millisecond))
	require.False(t, ran)
}

type fakeSource struct{ fired chan struct{} }

func (f *fakeSource) Run(ctx context.Context, post func(func())) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(5 * time.Millisecond):
		post(func() { close(f.fired) })
	}
}

func TestDispatcherRunsSourceEvents(t *testing.T) {
	src := &fakeSource{fired: make(chan struct{})}
	d := NewDispatcher(nil, src)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-src.fired:
	case <-time.After(time.Second):
		t.Fatal("source event never fired")
	}
	cancel()
	<-done
}
