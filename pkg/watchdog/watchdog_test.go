package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogTripsOnIdleTimeout(t *testing.T) {
	var mu sync.Mutex
	var reason error
	done := make(chan struct{})

	w := New(50*time.Millisecond, 10, func(r error) {
		mu.Lock()
		reason = r
		mu.Unlock()
		close(done)
	})
	w.Start()
	defer w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not trip on idle timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, reason, ErrIdleTimeout)
}

func TestWatchdogDataReceivedResetsIdleTimer(t *testing.T) {
	tripped := make(chan struct{}, 1)
	w := New(80*time.Millisecond, 10, func(error) {
		select {
		case tripped <- struct{}{}:
		default:
		}
	})
	w.Start()
	defer w.Stop()

	stop := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(20 * time.Millisecond):
			w.OnDataReceived()
		}
	}

	select {
	case <-tripped:
		t.Fatal("watchdog tripped despite continuous data")
	default:
	}
}

func TestWatchdogTripsOnExceptionThreshold(t *testing.T) {
	done := make(chan error, 1)
	w := New(time.Hour, 3, func(r error) {
		done <- r
	})
	w.Start()
	defer w.Stop()

	for i := 0; i < 10; i++ {
		w.OnException()
	}

	select {
	case reason := <-done:
		require.ErrorIs(t, reason, ErrTooManyExceptions)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not trip on exception threshold")
	}
}

func TestWatchdogStopIsIdempotent(t *testing.T) {
	w := New(time.Second, 10, nil)
	w.Start()
	w.Stop()
	assert.NotPanics(t, func() { w.Stop() })
}
