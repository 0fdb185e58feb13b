package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// takeLifecycle polls the response slot until a non-progress response
// shows up, the way the UI frame loop does.
func takeLifecycle(t *testing.T, o *Orchestrator, timeout time.Duration) Response {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r, ok := o.TakeResponse(); ok {
			if _, progress := r.(CurrentPlayTime); !progress {
				return r
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no lifecycle response before timeout")
	return nil
}

func TestOrchestratorPlaysHead(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()
	o.SetScheduler(NewScheduler(&fakeOutput{}))

	path := writeNotesFile(t, "head.mid", 3, 5)
	o.Playlist.AddPath(path)

	o.PlayFileOnTop()

	resp := takeLifecycle(t, o, 2*time.Second)
	started, ok := resp.(FilePlayStarted)
	require.True(t, ok, "got %T", resp)
	assert.Equal(t, path, started.Path)

	resp = takeLifecycle(t, o, 2*time.Second)
	assert.IsType(t, EndOfFile{}, resp)
	// the head stays queued until Next pops it
	assert.Equal(t, 1, o.Playlist.Len())
}

func TestOrchestratorNextAdvancesInPlayMode(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()
	o.SetScheduler(NewScheduler(&fakeOutput{}))
	o.SetPlayMode(true)

	first := writeNotesFile(t, "first.mid", 2, 5)
	second := writeNotesFile(t, "second.mid", 2, 5)
	o.Playlist.AddPath(first)
	o.Playlist.AddPath(second)

	o.PlayFileOnTop()
	resp := takeLifecycle(t, o, 2*time.Second)
	require.IsType(t, FilePlayStarted{}, resp)
	resp = takeLifecycle(t, o, 2*time.Second)
	require.IsType(t, EndOfFile{}, resp)

	o.Next()

	resp = takeLifecycle(t, o, 2*time.Second)
	started, ok := resp.(FilePlayStarted)
	require.True(t, ok, "got %T", resp)
	assert.Equal(t, second, started.Path)
	assert.Equal(t, 1, o.Playlist.Len())
}

func TestOrchestratorNextStopsOutsidePlayMode(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()
	o.SetScheduler(NewScheduler(&fakeOutput{}))

	o.Playlist.AddPath(writeNotesFile(t, "a.mid", 2, 5))
	o.Playlist.AddPath(writeNotesFile(t, "b.mid", 2, 5))

	o.Next()
	assert.Equal(t, 1, o.Playlist.Len())

	// nothing started on its own
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if r, ok := o.TakeResponse(); ok {
			if _, progress := r.(CurrentPlayTime); !progress {
				t.Fatalf("unexpected response %T", r)
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, o.IsPlaying())
}

func TestOrchestratorWithoutScheduler(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()

	// all operations are safe before a device is bound
	o.PlayFileOnTop()
	o.Next()
	o.Stop()
	assert.False(t, o.IsPlaying())
	assert.Nil(t, o.Notes())

	_, ok := o.TakeResponse()
	assert.False(t, ok)
}

func TestOrchestratorSwapSchedulerDropsStaleResponses(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()
	o.SetScheduler(NewScheduler(&fakeOutput{}))

	path := writeNotesFile(t, "swap.mid", 400, 10)
	o.Playlist.AddPath(path)
	o.PlayFileOnTop()

	resp := takeLifecycle(t, o, 2*time.Second)
	require.IsType(t, FilePlayStarted{}, resp)

	// simulate a device reopen mid-play
	o.SetScheduler(NewScheduler(&fakeOutput{}))

	// whatever is left in the slot is from before the swap; once it is
	// drained no new responses appear without a new run
	o.TakeResponse()
	time.Sleep(200 * time.Millisecond)
	if r, ok := o.TakeResponse(); ok {
		_, progress := r.(CurrentPlayTime)
		cancelled := false
		if _, c := r.(FileCancelled); c {
			cancelled = true
		}
		assert.True(t, progress || cancelled, "unexpected response %T", r)
	}
}

func TestOrchestratorInfoLoop(t *testing.T) {
	o := NewOrchestrator()
	defer o.Close()

	path := writeNotesFile(t, "timed.mid", 2, 480)
	o.Playlist.AddPath(path)
	o.StartInfoLoop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(o.Playlist.MissingDurations()) == 0 {
			d := o.Playlist.DurationOf(path)
			assert.Greater(t, d, 900*time.Millisecond)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("info pass never filled the duration")
}