package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScheduler_Fires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("undo", 5*time.Millisecond, func() { close(done) })
	assert.True(t, s.Pending("undo"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return !s.Pending("undo") }, time.Second, time.Millisecond)
}

func TestScheduler_ReplaceKeepsOnlyLatest(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var first, second atomic.Int32
	s.Schedule("release:t1", 10*time.Millisecond, func() { first.Add(1) })
	s.Schedule("release:t1", 10*time.Millisecond, func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestScheduler_CancelAndPrefix(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var fired atomic.Int32
	for _, name := range []string{"reminder:t1", "reminder:t1:s1", "reminder:t2", "undo"} {
		s.Schedule(name, 20*time.Millisecond, func() { fired.Add(1) })
	}

	assert.True(t, s.Cancel("undo"))
	assert.False(t, s.Cancel("undo"))
	assert.Equal(t, 2, s.CancelPrefix("reminder:t1"))
	assert.True(t, s.Pending("reminder:t2"))

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestScheduler_StopRejectsNewTimers(t *testing.T) {
	s := New(zap.NewNop())
	var fired atomic.Int32
	s.Schedule("a", 10*time.Millisecond, func() { fired.Add(1) })
	s.Stop()
	s.Schedule("b", time.Millisecond, func() { fired.Add(1) })

	assert.False(t, s.Pending("a"))
	assert.False(t, s.Pending("b"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestScheduler_PanicIsContained(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("boom", time.Millisecond, func() { panic("boom") })
	s.Schedule("after", 5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler stopped working after a panic")
	}
}
