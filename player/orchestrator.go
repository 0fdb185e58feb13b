package player

import (
	"sync"
	"time"

	"bookplayer/debug"
	"bookplayer/playlist"
)

// Orchestrator couples the scheduler, the playlist and the play-mode
// toggle into the single interface the UI talks to. A responder
// goroutine forwards scheduler responses into a slot the UI drains
// every frame; the UI never blocks on the engine.
type Orchestrator struct {
	mu        sync.Mutex
	sched     *Scheduler
	stopResp  chan struct{}
	playMode  bool
	startWait time.Duration

	Playlist *playlist.List

	respMu  sync.Mutex
	pending []Response

	stopInfo chan struct{}
	infoOnce sync.Once
}

// NewOrchestrator returns an orchestrator with an empty playlist and no
// scheduler bound yet.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		Playlist: playlist.New(),
		stopInfo: make(chan struct{}),
	}
}

// SetScheduler installs the scheduler driving the current output
// device. The previous scheduler is stopped and its responder torn
// down, so stale responses from a cancelled run cannot leak into the
// new one (the bus lives inside the scheduler and is recreated with it).
func (o *Orchestrator) SetScheduler(s *Scheduler) {
	o.mu.Lock()
	old := o.sched
	oldStop := o.stopResp
	o.sched = s
	if s != nil {
		o.stopResp = make(chan struct{})
	} else {
		o.stopResp = nil
	}
	stop := o.stopResp
	o.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if oldStop != nil {
		close(oldStop)
	}
	o.respMu.Lock()
	o.pending = nil
	o.respMu.Unlock()
	if s == nil {
		return
	}

	go func(bus <-chan Response, stop <-chan struct{}) {
		for {
			select {
			case <-stop:
				return
			case r := <-bus:
				o.respMu.Lock()
				// lifecycle responses queue up so none is lost between
				// frames; consecutive progress samples collapse into one
				if _, progress := r.(CurrentPlayTime); progress {
					if n := len(o.pending); n > 0 {
						if _, last := o.pending[n-1].(CurrentPlayTime); last {
							o.pending[n-1] = r
							o.respMu.Unlock()
							continue
						}
					}
				}
				o.pending = append(o.pending, r)
				o.respMu.Unlock()
			}
		}
	}(s.Responses(), stop)
}

// Scheduler returns the currently bound scheduler, if any.
func (o *Orchestrator) Scheduler() *Scheduler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sched
}

// TakeResponse pops the oldest queued scheduler response.
func (o *Orchestrator) TakeResponse() (Response, bool) {
	o.respMu.Lock()
	defer o.respMu.Unlock()
	if len(o.pending) == 0 {
		return nil, false
	}
	r := o.pending[0]
	o.pending = o.pending[1:]
	return r, true
}

// SetPlayMode toggles auto-advance: when on, Next starts the new head.
func (o *Orchestrator) SetPlayMode(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playMode = on
}

// PlayMode reports the auto-advance toggle.
func (o *Orchestrator) PlayMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playMode
}

// SetStartWait sets the silence inserted before each file.
func (o *Orchestrator) SetStartWait(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startWait = d
}

// PlayFileOnTop stops the current run and plays the playlist head.
func (o *Orchestrator) PlayFileOnTop() {
	o.mu.Lock()
	sched := o.sched
	wait := o.startWait
	o.mu.Unlock()
	if sched == nil {
		return
	}
	sched.Stop()
	if cur, ok := o.Playlist.Current(); ok {
		sched.Start(cur.Path, wait)
	}
}

// Next pops the played head; in play mode the new head starts, outside
// it the player just stops.
func (o *Orchestrator) Next() {
	o.Playlist.Skip()
	if o.PlayMode() {
		o.PlayFileOnTop()
	} else {
		o.Stop()
	}
}

// Stop cancels the current run without touching the playlist.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched != nil {
		sched.Stop()
	}
}

// IsPlaying reports whether the bound scheduler is mid-run.
func (o *Orchestrator) IsPlaying() bool {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	return sched != nil && sched.IsPlaying()
}

// Notes exposes the note table of the current run for the renderer.
func (o *Orchestrator) Notes() []Note {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched == nil {
		return nil
	}
	return sched.Notes()
}

// StartInfoLoop launches the background pass computing durations for
// playlist entries that lack them, once per second.
func (o *Orchestrator) StartInfoLoop() {
	o.infoOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-o.stopInfo:
					return
				case <-ticker.C:
					for _, path := range o.Playlist.MissingDurations() {
						d, err := FileInfo(path)
						if err != nil {
							debug.Warnf("orchestrator", "info pass failed for %s: %v", path, err)
							continue
						}
						o.Playlist.SetDuration(path, d)
					}
				}
			}
		}()
	})
}

// Close stops the responder and info loops and cancels any run.
func (o *Orchestrator) Close() {
	o.SetScheduler(nil)
	close(o.stopInfo)
}
