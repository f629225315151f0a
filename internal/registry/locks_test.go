package registry

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocks_RejectsOverlap(t *testing.T) {
	l := NewLocks()

	release, err := l.TryAcquire("webapp")
	require.NoError(t, err)

	_, err = l.TryAcquire("webapp")
	assert.True(t, errors.Is(err, ErrBusy))

	other, err := l.TryAcquire("api")
	require.NoError(t, err, "templates lock independently")
	other()

	release()
	release()
	assert.Zero(t, l.Held())

	again, err := l.TryAcquire("webapp")
	require.NoError(t, err)
	again()
}

func TestLocks_SingleWinnerUnderContention(t *testing.T) {
	l := NewLocks()
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
		start   = make(chan struct{})
		hold    = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := l.TryAcquire("webapp")
			if err != nil {
				losers.Add(1)
				return
			}
			winners.Add(1)
			<-hold
			release()
		}()
	}
	close(start)
	// The winner holds the lock until every other attempt has failed.
	for losers.Load() < 15 {
		runtime.Gosched()
	}
	close(hold)
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}
