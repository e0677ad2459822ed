package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	result := WaitFor(t, func() bool {
		return true
	}, WithTimeout(time.Second))

	if !result {
		t.Error("expected WaitFor to return true for immediate success")
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	counter := 0
	result := WaitFor(t, func() bool {
		counter++
		return counter >= 3
	}, WithTimeout(time.Second), WithInterval(10*time.Millisecond))

	if !result {
		t.Error("expected WaitFor to return true for eventual success")
	}
	if counter < 3 {
		t.Errorf("expected counter >= 3, got %d", counter)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	result := WaitFor(t, func() bool {
		return false
	}, WithTimeout(50*time.Millisecond), WithInterval(10*time.Millisecond))

	if result {
		t.Error("expected WaitFor to return false on timeout")
	}
}

func TestMustWaitFor_BackgroundProgress(t *testing.T) {
	t.Parallel()
	var counter atomic.Int64

	go func() {
		for i := 0; i < 5; i++ {
			time.Sleep(10 * time.Millisecond)
			counter.Add(1)
		}
	}()

	MustWaitFor(t, func() bool {
		return counter.Load() >= 5
	}, WithTimeout(time.Second), WithInterval(10*time.Millisecond))
}
