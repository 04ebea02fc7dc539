package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/pkg/core"
	"go.opentelemetry.io/otel/metric/noop"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func pt(x, y float64) *core.Point {
	return &core.Point{X: x, Y: y}
}

func connector(id string) core.Connector {
	return core.Connector{ID: id, Points: []core.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, Style: core.StyleSolid, Type: core.LinePass}
}

// testSequence moves "a" across the field in the first second and reveals
// c1 during the move and c2 after a gap.
func testSequence() core.AnimationSequence {
	return core.AnimationSequence{
		ID:            "seq-1",
		Title:         "overlap",
		TotalDuration: 2500,
		Steps: core.Steps{
			core.RevealConnectorStep{Timing: core.Timing{Timestamp: 0, Duration: 1000}, Connector: connector("c1")},
			core.MoveStep{Timing: core.Timing{Timestamp: 0, Duration: 1000}, TokenID: "a", From: pt(0, 0), To: pt(1, 1), Easing: core.EasingLinear},
			core.RevealConnectorStep{Timing: core.Timing{Timestamp: 1500, Duration: 1000}, Connector: connector("c2")},
		},
	}
}

func newTestStore(t *testing.T, seqs ...core.AnimationSequence) *board.Store {
	t.Helper()
	s := board.New(core.Snapshot{
		Tokens: []core.Token{
			{ID: "a", Team: core.TeamHome, Number: 7, Kind: core.TokenPlayer},
			{ID: "b", Team: core.TeamAway, Number: 4, Kind: core.TokenPlayer, Position: core.Point{X: 90, Y: 90}},
		},
		View: core.ViewSettings{FieldWidth: 100, FieldHeight: 100},
	}, board.Config{})
	s.LoadLibrary(append([]core.AnimationSequence{testSequence()}, seqs...))
	return s
}

func newTestEngine(t *testing.T, s *board.Store, cfg Config) *Engine {
	t.Helper()
	e, err := New(s, cfg)
	require.NoError(t, err)
	return e
}

func positionOf(t *testing.T, s *board.Store, id string) core.Point {
	t.Helper()
	p, ok := s.Positions()[id]
	require.True(t, ok, "token %s", id)
	return p
}

func TestNew_StartsStopped(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})

	state := e.State()
	assert.Equal(t, core.PlaybackStopped, state.Status)
	assert.Equal(t, DefaultSpeed, state.Speed)
	assert.False(t, e.Active())
}

func TestPlay_UnknownSequence(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})

	err := e.Play("missing", t0)
	assert.ErrorIs(t, err, ErrUnknownSequence)
	assert.Equal(t, core.PlaybackStopped, e.State().Status)
}

func TestPlay_RefusedWhileRecording(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	e.SetRecordingGuard(func() bool { return true })

	err := e.Play("seq-1", t0)
	assert.ErrorIs(t, err, ErrRecordingActive)
	assert.False(t, e.Active())
}

func TestTick_InterpolatesInFieldUnits(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))

	require.True(t, e.Tick(at(500)))

	p := positionOf(t, s, "a")
	assert.InDelta(t, 50, p.X, 1e-9)
	assert.InDelta(t, 50, p.Y, 1e-9)
	assert.InDelta(t, 500, e.State().CurrentTime, 1e-9)
	assert.Equal(t, core.Point{X: 90, Y: 90}, positionOf(t, s, "b"), "untouched token keeps its position")
}

func TestTick_DoesNotTouchHistory(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))

	for ms := 0; ms <= 2000; ms += 100 {
		e.Tick(at(ms))
	}

	assert.Equal(t, 1, s.HistoryLen())
	assert.Equal(t, 0, s.HistoryCursor())
}

func TestTick_NaturalFinish(t *testing.T) {
	var reports []Report
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{OnFinish: func(r Report) { reports = append(reports, r) }})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))

	assert.False(t, e.Tick(at(3000)))

	state := e.State()
	assert.Equal(t, core.PlaybackStopped, state.Status)
	assert.Equal(t, 2500.0, state.CurrentTime)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Completed)
	assert.Equal(t, "seq-1", reports[0].SequenceID)
	assert.Equal(t, 1, reports[0].Frames)
	assert.Equal(t, 3*time.Second, reports[0].WallTime)

	assert.False(t, e.Tick(at(3100)), "finished engine schedules no more ticks")
}

func TestTick_EmptySequenceFinishesImmediately(t *testing.T) {
	s := newTestStore(t, core.AnimationSequence{ID: "empty"})
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("empty", t0))

	assert.False(t, e.Tick(t0))
	assert.Equal(t, core.PlaybackStopped, e.State().Status)
}

func TestEngine_RevealsReplaceNotAccumulate(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))

	require.True(t, e.Tick(at(500)))
	rev := s.Reveals()
	require.Len(t, rev.Connectors, 1)
	assert.Equal(t, "c1", rev.Connectors[0].ID)

	require.True(t, e.Tick(at(1200)))
	assert.Empty(t, s.Reveals().Connectors, "c1 window has closed")

	require.True(t, e.Tick(at(2000)))
	rev = s.Reveals()
	require.Len(t, rev.Connectors, 1)
	assert.Equal(t, "c2", rev.Connectors[0].ID)
}

func TestTick_StepWindowIsInclusive(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))

	require.True(t, e.Tick(at(1000)))

	assert.InDelta(t, 100, positionOf(t, s, "a").X, 1e-9)
	assert.Len(t, s.Reveals().Connectors, 1)
}

func TestPauseResume_MatchesUninterruptedPlayback(t *testing.T) {
	ref := newTestStore(t)
	straight := newTestEngine(t, ref, Config{})
	require.NoError(t, straight.Play("seq-1", t0))
	require.True(t, straight.Tick(at(700)))

	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(300)))
	require.NoError(t, e.Pause())
	assert.False(t, e.Tick(at(5000)), "paused engine does not tick")
	assert.InDelta(t, 300, e.State().CurrentTime, 1e-9)

	require.NoError(t, e.Resume(at(10_000)))
	require.True(t, e.Tick(at(10_400)))

	assert.InDelta(t, straight.State().CurrentTime, e.State().CurrentTime, 1e-9)
	assert.InDelta(t, positionOf(t, ref, "a").X, positionOf(t, s, "a").X, 1e-9)
}

func TestPauseResume_InvalidTransitions(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})

	assert.ErrorIs(t, e.Pause(), ErrNotPlaying)
	assert.ErrorIs(t, e.Resume(t0), ErrNotPaused)

	require.NoError(t, e.Play("seq-1", t0))
	assert.ErrorIs(t, e.Resume(t0), ErrNotPaused)
	require.NoError(t, e.Pause())
	assert.ErrorIs(t, e.Pause(), ErrNotPlaying)
}

func TestSeek_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))

	got := e.Seek(700)
	assert.Equal(t, 700.0, got)
	assert.Equal(t, core.PlaybackPlaying, e.State().Status)

	require.True(t, e.Tick(at(200)))
	assert.InDelta(t, 700, e.State().CurrentTime, 1e-9)
	assert.InDelta(t, 70, positionOf(t, s, "a").X, 1e-9)

	require.True(t, e.Tick(at(300)))
	assert.InDelta(t, 800, e.State().CurrentTime, 1e-9)
}

func TestSeek_Clamps(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	require.NoError(t, e.Play("seq-1", t0))

	assert.Equal(t, 0.0, e.Seek(-50))
	assert.Equal(t, 2500.0, e.Seek(99_999))
}

func TestSeek_WhilePausedWritesFrameWithoutResuming(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))
	require.NoError(t, e.Pause())

	e.Seek(250)

	assert.Equal(t, core.PlaybackPaused, e.State().Status)
	assert.InDelta(t, 25, positionOf(t, s, "a").X, 1e-9)

	require.NoError(t, e.Resume(at(1000)))
	require.True(t, e.Tick(at(1100)))
	assert.InDelta(t, 350, e.State().CurrentTime, 1e-9)
}

func TestSetSpeed_ClampsToRange(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})

	assert.Equal(t, MaxSpeed, e.SetSpeed(10))
	assert.Equal(t, MinSpeed, e.SetSpeed(0))
	assert.Equal(t, MinSpeed, e.SetSpeed(-3))
	assert.Equal(t, 1.5, e.SetSpeed(1.5))
	assert.Equal(t, 1.5, e.State().Speed)
}

func TestSetSpeed_KeepsContinuity(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))

	e.SetSpeed(2)
	require.True(t, e.Tick(at(200)))
	assert.InDelta(t, 300, e.State().CurrentTime, 1e-9, "100ms at 1x then 100ms at 2x")

	require.True(t, e.Tick(at(300)))
	assert.InDelta(t, 500, e.State().CurrentTime, 1e-9)
}

func TestSetSpeed_RepeatedChangesBetweenTicks(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))

	e.SetSpeed(3)
	e.SetSpeed(0.5)
	require.True(t, e.Tick(at(300)))
	assert.InDelta(t, 200, e.State().CurrentTime, 1e-9, "only the last speed applies after the tick")
}

func TestSetSpeed_AfterSeekKeepsSeekTarget(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))

	e.Seek(700)
	e.SetSpeed(2)
	require.True(t, e.Tick(at(200)))
	assert.InDelta(t, 700, e.State().CurrentTime, 1e-9)
	require.True(t, e.Tick(at(250)))
	assert.InDelta(t, 800, e.State().CurrentTime, 1e-9)
}

func TestSetSpeed_WhilePausedAppliesOnResume(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))
	require.NoError(t, e.Pause())

	e.SetSpeed(2)
	require.NoError(t, e.Resume(at(5000)))
	require.True(t, e.Tick(at(5100)))
	assert.InDelta(t, 300, e.State().CurrentTime, 1e-9)
}

func TestTick_SkipsMalformedSteps(t *testing.T) {
	var report Report
	broken := core.AnimationSequence{
		ID:            "broken",
		TotalDuration: 1000,
		Steps: core.Steps{
			core.MoveStep{Timing: core.Timing{Duration: 1000}, TokenID: "b", To: pt(0, 0)},
			nil,
			core.MoveStep{Timing: core.Timing{Duration: 1000}, TokenID: "ghost", From: pt(0, 0), To: pt(1, 1)},
			core.MoveStep{Timing: core.Timing{Duration: 1000}, TokenID: "a", From: pt(0, 0), To: pt(1, 0), Easing: core.EasingLinear},
		},
	}
	s := newTestStore(t, broken)
	e := newTestEngine(t, s, Config{OnFinish: func(r Report) { report = r }})
	require.NoError(t, e.Play("broken", t0))

	require.NotPanics(t, func() { e.Tick(at(500)) })

	assert.Equal(t, core.Point{X: 90, Y: 90}, positionOf(t, s, "b"))
	assert.InDelta(t, 50, positionOf(t, s, "a").X, 1e-9)

	e.Stop()
	assert.Equal(t, 2, report.Skipped)
	assert.False(t, report.Completed)
}

func TestTick_ZeroDurationMoveLandsOnTarget(t *testing.T) {
	snap := core.AnimationSequence{
		ID:            "snap",
		TotalDuration: 100,
		Steps: core.Steps{
			core.MoveStep{Timing: core.Timing{Timestamp: 50}, TokenID: "a", From: pt(0, 0), To: pt(0.5, 0.5), Easing: core.EasingEaseInOut},
		},
	}
	s := newTestStore(t, snap)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("snap", t0))

	require.True(t, e.Tick(at(50)))
	assert.InDelta(t, 50, positionOf(t, s, "a").X, 1e-9)
}

func TestTickSession_SupersededSessionIsNoop(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("seq-1", t0))
	stale := e.Generation()

	require.NoError(t, e.Play("seq-1", at(1000)))
	assert.NotEqual(t, stale, e.Generation())

	assert.False(t, e.TickSession(stale, at(1500)))
	assert.Equal(t, core.Point{}, positionOf(t, s, "a"), "stale session wrote nothing")

	assert.True(t, e.TickSession(e.Generation(), at(1500)))
	assert.InDelta(t, 50, positionOf(t, s, "a").X, 1e-9)
}

func TestPlay_SupersedingReportsPreviousRun(t *testing.T) {
	var reports []Report
	e := newTestEngine(t, newTestStore(t), Config{OnFinish: func(r Report) { reports = append(reports, r) }})
	require.NoError(t, e.Play("seq-1", t0))
	require.True(t, e.Tick(at(100)))

	require.NoError(t, e.Play("seq-1", at(200)))

	require.Len(t, reports, 1)
	assert.False(t, reports[0].Completed)
	assert.InDelta(t, 100, reports[0].Position, 1e-9)
}

func TestStop_ResetsAndClearsOverlay(t *testing.T) {
	withOverlay := core.AnimationSequence{
		ID:            "overlay",
		TotalDuration: 1000,
		Steps: core.Steps{
			core.RevealOverlayStep{Timing: core.Timing{Duration: 1000}, Raster: []byte{0x89, 0x50}},
		},
	}
	s := newTestStore(t, withOverlay)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("overlay", t0))
	require.True(t, e.Tick(at(10)))
	require.NotNil(t, s.Reveals().Overlay)
	gen := e.Generation()

	e.Stop()

	state := e.State()
	assert.Equal(t, core.PlaybackStopped, state.Status)
	assert.Equal(t, 0.0, state.CurrentTime)
	assert.Nil(t, s.Reveals().Overlay)
	assert.False(t, e.TickSession(gen, at(20)))
}

func TestTick_LoopingSequenceWraps(t *testing.T) {
	looped := testSequence()
	looped.ID = "looped"
	looped.Loop = true
	s := newTestStore(t, looped)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("looped", t0))

	require.True(t, e.Tick(at(2700)))

	assert.Equal(t, core.PlaybackPlaying, e.State().Status)
	assert.InDelta(t, 200, e.State().CurrentTime, 1e-9)
	assert.InDelta(t, 20, positionOf(t, s, "a").X, 1e-9)
}

func TestFrameLoop_DrivesSessionToCompletion(t *testing.T) {
	short := core.AnimationSequence{
		ID:            "short",
		TotalDuration: 30,
		Steps: core.Steps{
			core.MoveStep{Timing: core.Timing{Duration: 30}, TokenID: "a", From: pt(0, 0), To: pt(1, 1)},
		},
	}
	s := newTestStore(t, short)
	e := newTestEngine(t, s, Config{})
	require.NoError(t, e.Play("short", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	FrameLoop(ctx, e, e.Generation(), time.Millisecond)

	require.NoError(t, ctx.Err())
	assert.Equal(t, core.PlaybackStopped, e.State().Status)
	assert.Equal(t, 30.0, e.State().CurrentTime)
}

func TestFrameLoop_ExitsWhenSuperseded(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), Config{})
	require.NoError(t, e.Play("seq-1", time.Now()))
	gen := e.Generation()

	done := make(chan struct{})
	go func() {
		FrameLoop(context.Background(), e, gen, time.Millisecond)
		close(done)
	}()

	e.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("frame loop did not exit after Stop")
	}
}

func TestFrameLoop_SupersededBeforeFirstTick(t *testing.T) {
	var reports []Report
	e := newTestEngine(t, newTestStore(t), Config{OnFinish: func(r Report) { reports = append(reports, r) }})

	require.NoError(t, e.Play("seq-1", time.Now()))
	first := e.Generation()
	require.NoError(t, e.Play("seq-1", time.Now()))
	second := e.Generation()
	require.NotEqual(t, first, second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	FrameLoop(ctx, e, first, time.Millisecond)
	require.NoError(t, ctx.Err(), "stale loop returns on its first tick")

	e.Stop()
	require.Len(t, reports, 2)
	assert.Zero(t, reports[1].Frames, "the stale loop wrote no frames for the new session")
}

func TestNew_WithMeter(t *testing.T) {
	s := newTestStore(t)
	e := newTestEngine(t, s, Config{Meter: noop.Meter{}})

	require.NoError(t, e.Play("seq-1", at(0)))
	e.Tick(at(500))
	assert.Equal(t, core.PlaybackPlaying, e.State().Status)
}
