package loop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/delaneyj/sparkdom/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMicrotasksRunInOrder(t *testing.T) {
	l := loop.New()
	order := []int{}
	l.QueueMicrotask(func() {
		order = append(order, 1)
		l.QueueMicrotask(func() { order = append(order, 3) })
	})
	l.QueueMicrotask(func() { order = append(order, 2) })

	assert.True(t, l.RunMicrotasks())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.False(t, l.RunMicrotasks())
}

// microtasks queued by a timer run before the next timer
func TestTickDrainsMicrotasksAfterTimer(t *testing.T) {
	l := loop.New()
	order := []string{}
	l.SetTimeout(func() error {
		order = append(order, "timer 1")
		l.QueueMicrotask(func() { order = append(order, "micro") })
		return nil
	}, 0)
	l.SetTimeout(func() error {
		order = append(order, "timer 2")
		return nil
	}, 0)

	require.NoError(t, l.Drain(context.Background()))
	assert.Equal(t, []string{"timer 1", "micro", "timer 2"}, order)
	assert.True(t, l.Idle())
}

func TestUnhandledTimerErrors(t *testing.T) {
	var seen []error
	l := loop.New(loop.WithErrorHandler(func(err error) {
		seen = append(seen, err)
	}))
	boom := errors.New("boom")
	l.SetTimeout(func() error { return boom }, 0)

	require.NoError(t, l.Drain(context.Background()))
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], boom)
	assert.Len(t, l.Errors(), 1)
}

func TestClearTimeout(t *testing.T) {
	l := loop.New()
	ran := false
	id := l.SetTimeout(func() error {
		ran = true
		return nil
	}, time.Millisecond)
	l.ClearTimeout(id)

	require.NoError(t, l.Drain(context.Background()))
	assert.False(t, ran)
}

func TestDrainHonoursContext(t *testing.T) {
	l := loop.New()
	l.SetTimeout(func() error { return nil }, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Drain(ctx), context.DeadlineExceeded)
}

func TestPromiseContinuationsAreMicrotasks(t *testing.T) {
	l := loop.New()
	p, resolve, _ := loop.NewPromise(l)

	var got any
	p.Then(func(v any, err error) {
		require.NoError(t, err)
		got = v
	})
	resolve(42)
	assert.Nil(t, got)
	assert.Equal(t, loop.Fulfilled, p.State())

	l.RunMicrotasks()
	assert.Equal(t, 42, got)
}

func TestPromiseAdoptsInnerPromise(t *testing.T) {
	l := loop.New()
	inner, resolveInner, _ := loop.NewPromise(l)
	outer, resolveOuter, _ := loop.NewPromise(l)

	resolveOuter(inner)
	assert.Equal(t, loop.Pending, outer.State())

	resolveInner("done")
	l.RunMicrotasks()
	v, err := outer.Result()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestRejectedPromise(t *testing.T) {
	l := loop.New()
	p := loop.RejectedWith(l, nil)

	var gotErr error
	p.Then(func(_ any, err error) { gotErr = err })
	l.RunMicrotasks()
	assert.ErrorIs(t, gotErr, loop.ErrPromiseRejected)
	assert.Equal(t, "rejected", p.State().String())
}
