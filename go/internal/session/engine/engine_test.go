package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/playback"
)

// fakeSessions is a scriptable SessionClient. GetSession returns the
// current server snapshot; commands return whatever their hook returns.
type fakeSessions struct {
	mu       sync.Mutex
	current  models.SessionSnapshot
	tracks   []models.Track
	getErr   error
	gets     int
	commands map[string]func() (models.SessionSnapshot, error)
	calls    []string
}

func newFakeSessions(snap models.SessionSnapshot, tracks int) *fakeSessions {
	list := make([]models.Track, tracks)
	for i := range list {
		list[i] = models.Track{ID: string(rune('a' + i)), Name: "track", Order: i}
	}
	return &fakeSessions{
		current:  snap,
		tracks:   list,
		commands: make(map[string]func() (models.SessionSnapshot, error)),
	}
}

func (f *fakeSessions) set(snap models.SessionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = snap
}

func (f *fakeSessions) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeSessions) on(op string, fn func() (models.SessionSnapshot, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[op] = fn
}

func (f *fakeSessions) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeSessions) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeSessions) GetSession(ctx context.Context, id string) (models.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return models.SessionSnapshot{}, f.getErr
	}
	return f.current, nil
}

func (f *fakeSessions) command(op string) (models.SessionSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	fn := f.commands[op]
	current := f.current
	f.mu.Unlock()
	if fn == nil {
		return current, nil
	}
	return fn()
}

func (f *fakeSessions) StartSession(ctx context.Context, id string) (models.SessionSnapshot, error) {
	return f.command("start")
}

func (f *fakeSessions) PauseSession(ctx context.Context, id string) (models.SessionSnapshot, error) {
	return f.command("pause")
}

func (f *fakeSessions) ResumeSession(ctx context.Context, id string) (models.SessionSnapshot, error) {
	return f.command("resume")
}

func (f *fakeSessions) NextTrack(ctx context.Context, id string) (models.SessionSnapshot, error) {
	return f.command("next")
}

func (f *fakeSessions) EndSession(ctx context.Context, id string) (models.SessionSnapshot, error) {
	return f.command("end")
}

func (f *fakeSessions) ListTracks(ctx context.Context, id string) (models.TrackList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.NewTrackList(f.tracks), nil
}

func snapshot(status models.SessionStatus, index, secondsPerTrack int) models.SessionSnapshot {
	return models.SessionSnapshot{
		ID:                "s1",
		Status:            status,
		CurrentTrackIndex: index,
		SecondsPerTrack:   secondsPerTrack,
	}
}

type harness struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	sessions *fakeSessions
	player   *playback.Recorder
	engine   *Engine
}

// newHarness starts an engine on the initial snapshot. The poll interval is
// long enough that only the immediate first poll runs unless a test
// advances the clock past it.
func newHarness(t *testing.T, initial models.SessionSnapshot, autoAdvance bool) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    clockwork.NewFakeClock(),
		sessions: newFakeSessions(initial, 5),
		player:   &playback.Recorder{},
	}
	cfg := Config{
		SessionID:       initial.ID,
		PollInterval:    time.Hour,
		AutoAdvance:     autoAdvance,
		PlaybackTimeout: time.Second,
		Clock:           h.clock,
	}
	h.engine = New(cfg, h.sessions, h.player)
	if err := h.engine.Start(context.Background(), initial, models.TrackList{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		h.engine.Stop()
		h.engine.Wait()
	})
	h.waitForFirstPoll()
	return h
}

func (h *harness) waitForFirstPoll() {
	h.t.Helper()
	if h.engine.State().Terminal {
		return
	}
	h.waitFor("first poll", func(State) bool { return h.sessions.getCount() >= 1 })
	// The loop is asleep once its timer is registered next to the
	// countdown ticker, if any.
	waiters := 1
	if h.engine.State().Ticking {
		waiters = 2
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, waiters); err != nil {
		h.t.Fatalf("poll loop never slept: %v", err)
	}
}

// serve makes snap the server state and reconciles it, as a command
// response or poll would.
func (h *harness) serve(snap models.SessionSnapshot) {
	h.sessions.set(snap)
	h.engine.Reconcile(snap)
}

func (h *harness) waitFor(what string, cond func(State) bool) State {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.engine.State()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; state = %+v", what, s)
		}
		time.Sleep(time.Millisecond)
	}
}

// tick advances the fake clock one second at a time, waiting for each tick
// to land before the next.
func (h *harness) tick(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		before := h.engine.State().SecondsRemaining
		h.clock.Advance(time.Second)
		h.waitFor("tick", func(s State) bool { return s.SecondsRemaining < before || !s.Ticking })
	}
}

func TestStartStates(t *testing.T) {
	tests := []struct {
		name    string
		initial models.SessionSnapshot
		ticking bool
		polling bool
		plays   int
	}{
		{"lobby", snapshot(models.SessionStatusLobby, -1, 60), false, true, 0},
		{"active", snapshot(models.SessionStatusActive, 1, 60), true, true, 1},
		{"paused", snapshot(models.SessionStatusPaused, 1, 60), false, true, 0},
		{"ended", snapshot(models.SessionStatusEnded, 4, 60), false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.initial, false)
			h.settle()
			s := h.engine.State()
			if s.Ticking != tt.ticking || s.Polling != tt.polling {
				t.Fatalf("ticking=%v polling=%v, want %v %v", s.Ticking, s.Polling, tt.ticking, tt.polling)
			}
			if got := h.player.Count(playback.ActionPlay); got != tt.plays {
				t.Fatalf("plays = %d, want %d", got, tt.plays)
			}
			if s.SecondsRemaining != 60 {
				t.Fatalf("SecondsRemaining = %d, want 60", s.SecondsRemaining)
			}
			if s.Terminal != (tt.initial.Status == models.SessionStatusEnded) {
				t.Fatalf("Terminal = %v", s.Terminal)
			}
		})
	}
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusLobby, -1, 60), false)
	err := h.engine.Start(context.Background(), snapshot(models.SessionStatusLobby, -1, 60), models.TrackList{})
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartRejectsInvalidSnapshot(t *testing.T) {
	e := New(Config{Clock: clockwork.NewFakeClock()}, newFakeSessions(models.SessionSnapshot{}, 0), &playback.Recorder{})
	if err := e.Start(context.Background(), models.SessionSnapshot{ID: "x"}, models.TrackList{}); err == nil {
		t.Fatal("Start accepted a snapshot without status")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusLobby, -1, 60), false)

	active := snapshot(models.SessionStatusActive, 0, 60)
	h.serve(active)
	h.settle()
	plays := h.player.Count(playback.ActionPlay)
	run := h.engine.timerRunForTest()

	h.serve(active)
	h.serve(active)
	h.settle()

	if got := h.player.Count(playback.ActionPlay); got != plays {
		t.Fatalf("plays after repeats = %d, want %d", got, plays)
	}
	if got := h.engine.timerRunForTest(); got != run {
		t.Fatalf("countdown restarted: run %d -> %d", run, got)
	}
}

func TestTrackChangeResets(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 2, 60), false)
	h.tick(55)
	if s := h.engine.State(); s.SecondsRemaining != 5 || s.TrackIndex != 2 {
		t.Fatalf("before change: %+v", s)
	}
	h.settle()
	plays := h.player.Count(playback.ActionPlay)

	h.serve(snapshot(models.SessionStatusActive, 3, 60))
	h.settle()

	s := h.engine.State()
	if s.SecondsRemaining != 60 || !s.Ticking {
		t.Fatalf("after change: remaining=%d ticking=%v", s.SecondsRemaining, s.Ticking)
	}
	if got := h.player.Count(playback.ActionPlay); got != plays+1 {
		t.Fatalf("plays = %d, want %d", got, plays+1)
	}
	calls := h.player.Calls()
	if last := calls[len(calls)-1]; last.Action != playback.ActionPlay || last.Track.ID != "d" {
		t.Fatalf("last playback call = %+v, want play of track d", last)
	}
}

func TestPauseFreezesResumeResets(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)
	h.tick(30)

	h.serve(snapshot(models.SessionStatusPaused, 0, 60))
	s := h.engine.State()
	if s.Ticking || s.SecondsRemaining != 30 {
		t.Fatalf("paused: ticking=%v remaining=%d, want stopped at 30", s.Ticking, s.SecondsRemaining)
	}
	h.settle()
	if h.player.Count(playback.ActionPause) != 1 {
		t.Fatalf("pause commands = %d, want 1", h.player.Count(playback.ActionPause))
	}

	// Time passing while paused changes nothing.
	h.clock.Advance(5 * time.Second)
	if got := h.engine.State().SecondsRemaining; got != 30 {
		t.Fatalf("remaining drifted while paused: %d", got)
	}

	// Repeated pause snapshots are no-ops.
	h.serve(snapshot(models.SessionStatusPaused, 0, 60))
	h.settle()
	if h.player.Count(playback.ActionPause) != 1 {
		t.Fatalf("repeated pause issued another pause command")
	}

	h.serve(snapshot(models.SessionStatusActive, 0, 60))
	s = h.engine.State()
	if !s.Ticking || s.SecondsRemaining != 60 {
		t.Fatalf("resumed: ticking=%v remaining=%d, want ticking at 60", s.Ticking, s.SecondsRemaining)
	}
	h.tick(1)
	if got := h.engine.State().SecondsRemaining; got != 59 {
		t.Fatalf("after resume tick: %d", got)
	}
}

func TestTrackChangeWhilePaused(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusPaused, 0, 60), false)
	h.serve(snapshot(models.SessionStatusPaused, 1, 45))
	h.settle()

	s := h.engine.State()
	if s.Ticking || s.SecondsRemaining != 45 || s.TrackIndex != 1 {
		t.Fatalf("state = %+v", s)
	}
	if h.player.Count(playback.ActionPlay) != 0 {
		t.Fatal("played while paused")
	}
}

func TestTerminalPrecedence(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)

	release := make(chan struct{})
	issued := make(chan struct{})
	h.sessions.on("pause", func() (models.SessionSnapshot, error) {
		close(issued)
		<-release
		return snapshot(models.SessionStatusPaused, 0, 60), nil
	})

	type result struct {
		state State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := h.engine.Command(context.Background(), CommandPause)
		done <- result{s, err}
	}()
	<-issued

	h.serve(snapshot(models.SessionStatusEnded, 0, 60))
	close(release)
	res := <-done
	if res.err != nil {
		t.Fatalf("Command: %v", res.err)
	}

	s := h.engine.State()
	if s.Status != models.SessionStatusEnded || !s.Terminal || s.Ticking || s.Polling {
		t.Fatalf("state after stale response = %+v", s)
	}
	h.settle()
	if h.player.Count(playback.ActionPause) != 0 {
		t.Fatal("stale pause response reached playback")
	}
	if h.player.Count(playback.ActionStop) != 1 {
		t.Fatalf("stop commands = %d, want 1", h.player.Count(playback.ActionStop))
	}

	// Nothing moves any more.
	h.clock.Advance(2 * time.Hour)
	if got := h.engine.State().SecondsRemaining; got != s.SecondsRemaining {
		t.Fatalf("countdown moved after end: %d -> %d", s.SecondsRemaining, got)
	}
	if _, err := h.engine.Command(context.Background(), CommandSkip); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("command after end: err = %v, want ErrSessionEnded", err)
	}
}

func TestOutOfOrderResponsesDiscarded(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)

	h.engine.mu.Lock()
	seq4 := h.engine.issueSeqLocked()
	seq5 := h.engine.issueSeqLocked()
	h.engine.mu.Unlock()

	h.engine.apply(seq5, snapshot(models.SessionStatusActive, 2, 60))
	h.engine.apply(seq4, snapshot(models.SessionStatusActive, 1, 60))

	s := h.engine.State()
	if s.TrackIndex != 2 || s.AppliedSeq != seq5 {
		t.Fatalf("state = index %d seq %d, want index 2 seq %d", s.TrackIndex, s.AppliedSeq, seq5)
	}
}

func TestPollFailuresSwallowed(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)
	h.sessions.setGetErr(errors.New("connection reset"))

	before := h.engine.State()
	gets := h.sessions.getCount()
	h.clock.Advance(time.Hour)
	h.waitFor("failed poll", func(State) bool { return h.sessions.getCount() > gets })

	s := h.engine.State()
	if s.LastError != "" || s.Status != before.Status || s.TrackIndex != before.TrackIndex {
		t.Fatalf("poll failure changed state: %+v", s)
	}
	if !s.Polling {
		t.Fatal("poll loop stopped after a failure")
	}
}

func TestPollAppliesServerState(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusLobby, -1, 60), false)

	h.sessions.set(snapshot(models.SessionStatusActive, 0, 60))
	h.clock.Advance(time.Hour)
	s := h.waitFor("poll to start the session", func(s State) bool { return s.Status == models.SessionStatusActive })
	if !s.Ticking || s.SecondsRemaining != 60 {
		t.Fatalf("state = %+v", s)
	}

	h.sessions.set(snapshot(models.SessionStatusEnded, 0, 60))
	h.waitForSleep()
	h.clock.Advance(time.Hour)
	h.waitFor("poll to end the session", func(s State) bool { return s.Terminal && !s.Polling })
}

func (h *harness) waitForSleep() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// countdown ticker + poll timer
	if err := h.clock.BlockUntilContext(ctx, 2); err != nil {
		h.t.Fatalf("loops never settled: %v", err)
	}
}

func TestCommandFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)
	h.tick(3)

	upstream := errors.New("502 bad gateway")
	h.sessions.on("pause", func() (models.SessionSnapshot, error) {
		return models.SessionSnapshot{}, upstream
	})

	s, err := h.engine.Command(context.Background(), CommandPause)
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Kind != CommandPause || !errors.Is(err, upstream) {
		t.Fatalf("err = %v, want CommandError wrapping upstream", err)
	}
	if s.Status != models.SessionStatusActive || !s.Ticking || s.SecondsRemaining != 57 {
		t.Fatalf("state after failed command = %+v", s)
	}
	if s.LastError == "" {
		t.Fatal("LastError not recorded")
	}

	h.engine.DismissError()
	if h.engine.State().LastError != "" {
		t.Fatal("DismissError kept the error")
	}
}

func TestCommandAppliesResponse(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusLobby, -1, 60), false)
	h.sessions.on("start", func() (models.SessionSnapshot, error) {
		return snapshot(models.SessionStatusActive, 0, 60), nil
	})

	s, err := h.engine.Command(context.Background(), CommandStart)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if s.Status != models.SessionStatusActive || !s.Ticking || s.SecondsRemaining != 60 {
		t.Fatalf("state = %+v", s)
	}
	if s.Track == nil || s.Track.ID != "a" {
		t.Fatalf("Track = %+v", s.Track)
	}
}

func TestDuplicateCommandRejectedWhileInFlight(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)

	release := make(chan struct{})
	issued := make(chan struct{})
	h.sessions.on("next", func() (models.SessionSnapshot, error) {
		close(issued)
		<-release
		return snapshot(models.SessionStatusActive, 1, 60), nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Command(context.Background(), CommandSkip)
		done <- err
	}()
	<-issued

	if s := h.engine.State(); len(s.InFlight) != 1 || s.InFlight[0] != CommandSkip {
		t.Fatalf("InFlight = %v", s.InFlight)
	}
	if _, err := h.engine.Command(context.Background(), CommandSkip); !errors.Is(err, ErrCommandInFlight) {
		t.Fatalf("duplicate: err = %v, want ErrCommandInFlight", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first command: %v", err)
	}
	if got := h.sessions.count("next"); got != 1 {
		t.Fatalf("next calls = %d, want 1", got)
	}
	if s := h.engine.State(); s.TrackIndex != 1 || len(s.InFlight) != 0 {
		t.Fatalf("state = %+v", s)
	}
}

func TestExpiryWithoutAutoAdvanceWaitsForPoll(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 3), false)
	h.tick(3)

	s := h.waitFor("expiry", func(s State) bool { return !s.Ticking })
	if s.SecondsRemaining != 0 || s.TrackIndex != 0 {
		t.Fatalf("state = %+v", s)
	}
	if h.sessions.count("next") != 0 {
		t.Fatal("participant called NextTrack")
	}
	h.settle()
	if h.player.Count(playback.ActionStop) != 1 {
		t.Fatalf("stop commands = %d, want 1", h.player.Count(playback.ActionStop))
	}
}

func TestAutoAdvanceFailureRetriedOnPoll(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 2), true)

	fail := true
	var mu sync.Mutex
	h.sessions.on("next", func() (models.SessionSnapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return models.SessionSnapshot{}, errors.New("timeout")
		}
		next := snapshot(models.SessionStatusActive, 1, 2)
		h.sessions.set(next)
		return next, nil
	})

	h.tick(2)
	s := h.waitFor("failed advance", func(s State) bool { return s.LastError != "" })
	if s.TrackIndex != 0 || s.Ticking || s.SecondsRemaining != 0 || !s.PendingAdvance {
		t.Fatalf("state after failed advance = %+v", s)
	}

	// The countdown does not restart on its own.
	h.clock.Advance(10 * time.Second)
	if s := h.engine.State(); s.Ticking || s.TrackIndex != 0 {
		t.Fatalf("countdown restarted without the server: %+v", s)
	}

	mu.Lock()
	fail = false
	mu.Unlock()

	h.clock.Advance(time.Hour)
	s = h.waitFor("retried advance", func(s State) bool { return s.TrackIndex == 1 })
	if !s.Ticking || s.SecondsRemaining != 2 || s.PendingAdvance {
		t.Fatalf("state after retry = %+v", s)
	}
	if got := h.sessions.count("next"); got != 2 {
		t.Fatalf("next calls = %d, want 2", got)
	}
}

func TestExpiryAfterPauseDoesNotAdvance(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), true)
	h.tick(59)
	run := h.engine.timerRunForTest()

	// The pause lands after the countdown's last decrement but before its
	// callbacks run.
	h.serve(snapshot(models.SessionStatusPaused, 0, 60))
	h.engine.onTick(run, 0)
	h.engine.onExpire(run)
	h.settle()

	s := h.engine.State()
	if s.Status != models.SessionStatusPaused || s.Ticking || s.PendingAdvance || s.SecondsRemaining != 1 {
		t.Fatalf("state = %+v", s)
	}
	if got := h.sessions.count("next"); got != 0 {
		t.Fatalf("next calls = %d, want 0", got)
	}
	if got := h.player.Count(playback.ActionStop); got != 0 {
		t.Fatalf("stop commands = %d, want 0", got)
	}
}

// blockingPlayer holds every call until its context ends or release is
// closed.
type blockingPlayer struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingPlayer) wait(ctx context.Context) error {
	p.once.Do(func() { close(p.started) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.release:
		return nil
	}
}

func (p *blockingPlayer) PlayTrack(ctx context.Context, _ models.Track) error { return p.wait(ctx) }
func (p *blockingPlayer) Pause(ctx context.Context) error                     { return p.wait(ctx) }
func (p *blockingPlayer) Stop(ctx context.Context) error                      { return p.wait(ctx) }

func TestSlowPlaybackDoesNotBlockEngine(t *testing.T) {
	player := &blockingPlayer{started: make(chan struct{}), release: make(chan struct{})}
	sessions := newFakeSessions(snapshot(models.SessionStatusLobby, -1, 60), 3)
	e := New(Config{
		PollInterval:    time.Hour,
		AutoAdvance:     false,
		PlaybackTimeout: time.Minute,
		Clock:           clockwork.NewFakeClock(),
	}, sessions, player)
	if err := e.Start(context.Background(), snapshot(models.SessionStatusLobby, -1, 60), models.TrackList{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		close(player.release)
		e.Stop()
		e.Wait()
	}()

	active := snapshot(models.SessionStatusActive, 0, 60)
	sessions.set(active)
	e.Reconcile(active)

	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("play was never dispatched")
	}

	done := make(chan State, 1)
	go func() {
		paused := snapshot(models.SessionStatusPaused, 0, 60)
		sessions.set(paused)
		e.Reconcile(paused)
		done <- e.State()
	}()
	select {
	case s := <-done:
		if s.Status != models.SessionStatusPaused || s.Ticking {
			t.Fatalf("state = %+v", s)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("engine blocked behind a pending playback call")
	}
}

func TestPlaybackFailureDoesNotBlockTransitions(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusLobby, -1, 60), false)
	h.player.SetErr(errors.New("no output device"))

	h.serve(snapshot(models.SessionStatusActive, 0, 60))
	s := h.engine.State()
	if s.Status != models.SessionStatusActive || !s.Ticking {
		t.Fatalf("state = %+v", s)
	}
	s = h.waitFor("playback error", func(s State) bool { return s.LastPlaybackError != "" })
	if s.LastError != "" {
		t.Fatalf("errors = %q / %q", s.LastPlaybackError, s.LastError)
	}
}

func TestStopIsReentrant(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)
	updates, _ := h.engine.Subscribe(4)
	h.settle()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.engine.Stop()
		}()
	}
	wg.Wait()
	h.engine.Wait()

	s := h.engine.State()
	if s.Ticking || s.Polling {
		t.Fatalf("loops alive after Stop: %+v", s)
	}
	for range updates {
	}
	if _, err := h.engine.Command(context.Background(), CommandPause); !errors.Is(err, ErrStopped) {
		t.Fatalf("command after Stop: err = %v", err)
	}
	// Stop leaves audio to the commander.
	if got := h.player.Count(playback.ActionStop); got != 0 {
		t.Fatalf("stop commands = %d, want 0", got)
	}

	// A never-started engine stops too.
	New(Config{Clock: clockwork.NewFakeClock()}, h.sessions, h.player).Stop()
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusLobby, -1, 60), false)
	updates, cancel := h.engine.Subscribe(8)
	defer cancel()

	if first := <-updates; first.Status != models.SessionStatusLobby {
		t.Fatalf("first state = %+v", first)
	}

	h.serve(snapshot(models.SessionStatusActive, 0, 60))
	select {
	case s := <-updates:
		if s.Status != models.SessionStatusActive {
			t.Fatalf("update = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after transition")
	}
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	h := newHarness(t, snapshot(models.SessionStatusActive, 0, 60), false)
	updates, cancel := h.engine.Subscribe(1)
	defer cancel()

	h.tick(3)

	var last State
	select {
	case last = <-updates:
	case <-time.After(time.Second):
		t.Fatal("no state delivered")
	}
	if last.SecondsRemaining != 57 {
		t.Fatalf("buffered state remaining = %d, want newest 57", last.SecondsRemaining)
	}
}

func TestDefaultConfigAdvancesOnExpiry(t *testing.T) {
	if !DefaultConfig().AutoAdvance {
		t.Fatal("DefaultConfig leaves AutoAdvance off")
	}
}

func TestParseCommandKind(t *testing.T) {
	tests := map[string]CommandKind{
		"start":  CommandStart,
		"Pause":  CommandPause,
		"resume": CommandResume,
		"skip":   CommandSkip,
		"next":   CommandSkip,
		" end ":  CommandEnd,
	}
	for in, want := range tests {
		got, err := ParseCommandKind(in)
		if err != nil || got != want {
			t.Errorf("ParseCommandKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseCommandKind("rewind"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown kind: err = %v", err)
	}
}

func (e *Engine) playbackIdleForTest() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.playQueue) == 0 && !e.playBusy
}

// settle waits until every queued playback call has been dispatched.
func (h *harness) settle() {
	h.t.Helper()
	h.waitFor("playback queue to drain", func(State) bool { return h.engine.playbackIdleForTest() })
}

func (e *Engine) timerRunForTest() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timerRun
}
