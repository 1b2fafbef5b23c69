package actor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_DoRunsInOrder(t *testing.T) {
	m := NewMailbox(8, nil)
	defer m.Stop()

	var got []int
	for i := 0; i < 5; i++ {
		m.Post(func() { got = append(got, i) })
	}
	require.NoError(t, m.Do(context.Background(), func() { got = append(got, 99) }))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, got)
}

func TestMailbox_SerialisesConcurrentCallers(t *testing.T) {
	m := NewMailbox(16, nil)
	defer m.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = m.Do(context.Background(), func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, m.Do(context.Background(), func() { final = counter }))
	assert.Equal(t, 1000, final)
}

func TestMailbox_StoppedRejectsWork(t *testing.T) {
	m := NewMailbox(1, nil)
	m.Stop()

	err := m.Do(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, m.Post(func() {}))
	assert.True(t, m.stopped())
}

func TestMailbox_RecoversFromPanic(t *testing.T) {
	m := NewMailbox(4, nil)
	defer m.Stop()

	require.NoError(t, m.Do(context.Background(), func() { panic("boom") }))

	ran := false
	require.NoError(t, m.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestMailbox_AfterFuncInertAfterStop(t *testing.T) {
	m := NewMailbox(4, nil)

	var fired atomic.Bool
	m.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestMailbox_AfterFuncCancelled(t *testing.T) {
	m := NewMailbox(4, nil)
	defer m.Stop()

	var fired atomic.Bool
	timer := m.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, timer.Stop())

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestMailbox_EveryTicks(t *testing.T) {
	m := NewMailbox(4, nil)
	defer m.Stop()

	var ticks atomic.Int32
	m.Every(5*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestMailbox_DoHonoursContext(t *testing.T) {
	m := NewMailbox(1, nil)
	defer m.Stop()

	release := make(chan struct{})
	m.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
