// Package handlers turns renderer commands into calls on the session
// context and persists what they change.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/internal/dispatcher"
	"github.com/tactiboard/engine/internal/geo"
	"github.com/tactiboard/engine/internal/playback"
	"github.com/tactiboard/engine/internal/recorder"
	"github.com/tactiboard/engine/internal/refine"
	"github.com/tactiboard/engine/internal/session"
	"github.com/tactiboard/engine/internal/storage"
	v1 "github.com/tactiboard/engine/internal/storage/memory/export/v1"
	"github.com/tactiboard/engine/internal/util"
	"github.com/tactiboard/engine/pkg/core"
)

// OverlayFlag is the optional argument that attaches a rendered overlay to
// the phase closed by :RECORD:PAUSE: or :RECORD:STOP:.
const OverlayFlag = "overlay"

// SamplerQueueSize bounds the :SAMPLER:PUSH: queue. Samples beyond it are
// dropped.
const SamplerQueueSize = 512

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Session       *session.Context
	Backend       storage.Backend // optional
	Logger        *slog.Logger
	FrameInterval time.Duration
	Overlay       func(core.Snapshot) ([]byte, error) // phase overlay rasterizer, optional
	Clock         func() time.Time
}

// BoardView is the result of :BOARD:SNAPSHOT:.
type BoardView struct {
	Board         core.Snapshot       `json:"board"`
	Connectors    []core.Connector    `json:"revealedConnectors"`
	Paths         []core.FreehandPath `json:"revealedPaths"`
	HasOverlay    bool                `json:"hasOverlay"`
	HistoryLen    int                 `json:"historyLen"`
	HistoryCursor int                 `json:"historyCursor"`
	Playback      core.PlaybackState  `json:"playback"`
}

// SaveResult is the result of :LIBRARY:SAVE:.
type SaveResult struct {
	Sequences int    `json:"sequences"`
	Path      string `json:"path,omitempty"`
}

// Service provides the command handlers.
type Service struct {
	deps Dependencies
	ctx  context.Context
	log  *slog.Logger

	// frame loops started by play commands
	loops   sync.WaitGroup
	startMu sync.Mutex
}

// NewService creates a new handler service. Frame loops it starts stop when
// ctx is cancelled.
func NewService(ctx context.Context, deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{deps: deps, ctx: ctx, log: log}
}

// Wait blocks until every frame loop started by the service has returned.
func (s *Service) Wait() {
	s.loops.Wait()
}

// RegisterHandlers registers every board command with d.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":BOARD:UNDO:", s.handleUndo, dispatcher.Logged())
	d.Register(":BOARD:REDO:", s.handleRedo, dispatcher.Logged())
	d.Register(":BOARD:DRAG:", s.handleDrag)
	d.Register(":BOARD:SNAPSHOT:", s.handleSnapshot)
	d.Register(":BOARD:CONNECTOR:", s.handleConnector, dispatcher.Logged())
	d.Register(":BOARD:PATH:", s.handlePath, dispatcher.Logged())
	d.Register(":BOARD:ERASE:", s.handleErase, dispatcher.Logged())
	d.Register(":BOARD:CLEAR:", s.handleClear, dispatcher.Logged())

	d.Register(":RECORD:START:", s.handleRecordStart, dispatcher.Logged())
	d.Register(":RECORD:PAUSE:", s.handleRecordPause, dispatcher.Logged())
	d.Register(":RECORD:RESUME:", s.handleRecordResume, dispatcher.Logged())
	d.Register(":RECORD:STOP:", s.handleRecordStop, dispatcher.Logged())

	d.Register(":PLAYBACK:PLAY:", s.handlePlay, dispatcher.Logged())
	d.Register(":PLAYBACK:PAUSE:", s.handlePlaybackPause, dispatcher.Logged())
	d.Register(":PLAYBACK:RESUME:", s.handlePlaybackResume, dispatcher.Logged())
	d.Register(":PLAYBACK:STOP:", s.handlePlaybackStop, dispatcher.Logged())
	d.Register(":PLAYBACK:SEEK:", s.handleSeek)
	d.Register(":PLAYBACK:SPEED:", s.handleSpeed, dispatcher.Logged())
	d.Register(":PLAYBACK:STATE:", s.handlePlaybackState)

	d.Register(":SAMPLER:START:", s.handleSamplerStart, dispatcher.Logged())
	d.Register(":SAMPLER:STOP:", s.handleSamplerStop, dispatcher.Logged())
	d.Register(":SAMPLER:PLAY:", s.handleSamplerPlay, dispatcher.Logged())
	d.Register(":SAMPLER:REWIND:", s.handleSamplerRewind, dispatcher.Logged())
	// pointer positions stream in at input rate; order matters, loss does not
	d.Register(":SAMPLER:PUSH:", s.handleSamplerPush, dispatcher.Buffered(SamplerQueueSize))

	d.Register(":LIBRARY:LIST:", s.handleLibraryList)
	d.Register(":LIBRARY:DELETE:", s.handleLibraryDelete, dispatcher.Logged())
	d.Register(":LIBRARY:SAVE:", s.handleLibrarySave, dispatcher.Logged())
}

// startLoop opens a session with start and drives it on a new frame loop.
// Starts are serialized so each loop is bound to the session its own start
// opened.
func (s *Service) startLoop(t playback.Ticker, start func() error) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if err := start(); err != nil {
		return err
	}
	gen := t.Generation()

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		playback.FrameLoop(s.ctx, t, gen, s.deps.FrameInterval)
	}()
	return nil
}

// persistBoard saves the live board. Failures are logged; the edit stands.
func (s *Service) persistBoard() {
	if s.deps.Backend == nil {
		return
	}
	if err := s.deps.Backend.SaveBoard(s.deps.Session.Board.Snapshot()); err != nil {
		s.log.Warn("failed to persist board", "error", err)
	}
}

func (s *Service) persistSequence(seq core.AnimationSequence) {
	if s.deps.Backend == nil {
		return
	}
	if err := s.deps.Backend.SaveSequence(seq); err != nil {
		s.log.Warn("failed to persist sequence", "id", seq.ID, "error", err)
	}
}

func (s *Service) unpersistSequence(id string) {
	if s.deps.Backend == nil {
		return
	}
	if err := s.deps.Backend.DeleteSequence(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("failed to delete stored sequence", "id", id, "error", err)
	}
}

func (s *Service) handleUndo(e dispatcher.Event) (any, error) {
	if s.deps.Session.Animating() {
		return nil, fmt.Errorf("undo: %w", session.ErrPlaybackActive)
	}
	moved := s.deps.Session.Board.Undo()
	if moved {
		s.persistBoard()
	}
	return moved, nil
}

func (s *Service) handleRedo(e dispatcher.Event) (any, error) {
	if s.deps.Session.Animating() {
		return nil, fmt.Errorf("redo: %w", session.ErrPlaybackActive)
	}
	moved := s.deps.Session.Board.Redo()
	if moved {
		s.persistBoard()
	}
	return moved, nil
}

func (s *Service) handleDrag(e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	id, err := util.StringArg(args, 0, "token id")
	if err != nil {
		return nil, err
	}
	var to core.Point
	if len(args) == 2 {
		// "x,y" in a single argument
		if to, err = geo.PointFromString(args[1]); err != nil {
			return nil, err
		}
	} else {
		x, err := util.FloatArg(args, 1, "x")
		if err != nil {
			return nil, err
		}
		y, err := util.FloatArg(args, 2, "y")
		if err != nil {
			return nil, err
		}
		to = core.Point{X: x, Y: y}
	}
	if err := s.deps.Session.DragToken(id, to); err != nil {
		return nil, err
	}
	s.persistBoard()
	return nil, nil
}

// PathResult is the result of :BOARD:PATH:.
type PathResult struct {
	ID     string  `json:"id"`
	Length float64 `json:"length"`
}

// drawing reads the id, polyline and optional style and type shared by
// :BOARD:CONNECTOR: and :BOARD:PATH:.
func drawing(args []string, defaultType core.LineType) (string, []core.Point, core.LineStyle, core.LineType, error) {
	id, err := util.StringArg(args, 0, "id")
	if err != nil {
		return "", nil, "", "", err
	}
	raw, err := util.StringArg(args, 1, "points")
	if err != nil {
		return "", nil, "", "", err
	}
	pts, err := geo.ParsePolyline(raw)
	if err != nil {
		return "", nil, "", "", fmt.Errorf("%w: %v", geo.ErrInvalidCoordinates, err)
	}
	style, kind := core.StyleSolid, defaultType
	if len(args) > 2 && args[2] != "" {
		style = core.LineStyle(args[2])
		if style != core.StyleSolid && style != core.StyleDashed {
			return "", nil, "", "", fmt.Errorf("%w: unknown line style %q", board.ErrInvalidMutation, args[2])
		}
	}
	if len(args) > 3 && args[3] != "" {
		kind = core.LineType(args[3])
		if kind != core.LinePass && kind != core.LineMovement {
			return "", nil, "", "", fmt.Errorf("%w: unknown line type %q", board.ErrInvalidMutation, args[3])
		}
	}
	return id, pts, style, kind, nil
}

// edit applies a drawing mutation unless an animation owns the board.
func (s *Service) edit(name string, m board.Mutation) error {
	if s.deps.Session.Animating() {
		return fmt.Errorf("%s: %w", name, session.ErrPlaybackActive)
	}
	if err := s.deps.Session.Board.Apply(m); err != nil {
		return err
	}
	s.persistBoard()
	return nil
}

func (s *Service) handleConnector(e dispatcher.Event) (any, error) {
	id, pts, style, kind, err := drawing(util.CleanArgs(e.Args), core.LinePass)
	if err != nil {
		return nil, err
	}
	c := core.Connector{ID: id, Points: pts, Style: style, Type: kind}
	return nil, s.edit("connector", board.AddConnector{Connector: c})
}

func (s *Service) handlePath(e dispatcher.Event) (any, error) {
	id, pts, style, kind, err := drawing(util.CleanArgs(e.Args), core.LineMovement)
	if err != nil {
		return nil, err
	}
	p := core.FreehandPath{ID: id, Points: pts, Style: style, Type: kind}
	if err := s.edit("path", board.AddPath{Path: p}); err != nil {
		return nil, err
	}
	return PathResult{ID: id, Length: geo.PathLength(pts)}, nil
}

// handleErase deletes a connector or, failing that, a path with the given id.
func (s *Service) handleErase(e dispatcher.Event) (any, error) {
	id, err := util.StringArg(util.CleanArgs(e.Args), 0, "id")
	if err != nil {
		return nil, err
	}
	err = s.edit("erase", board.DeleteConnector{ID: id})
	if errors.Is(err, board.ErrUnknownConnector) {
		err = s.edit("erase", board.DeletePath{ID: id})
	}
	return nil, err
}

func (s *Service) handleClear(e dispatcher.Event) (any, error) {
	return nil, s.edit("clear", board.ClearDrawings{})
}

func (s *Service) handleSnapshot(e dispatcher.Event) (any, error) {
	return s.BoardView(), nil
}

// BoardView returns the live board together with what playback reveals.
func (s *Service) BoardView() BoardView {
	b := s.deps.Session.Board
	rv := b.Reveals()
	return BoardView{
		Board:         b.Snapshot(),
		Connectors:    rv.Connectors,
		Paths:         rv.Paths,
		HasOverlay:    len(rv.Overlay) > 0,
		HistoryLen:    b.HistoryLen(),
		HistoryCursor: b.HistoryCursor(),
		Playback:      s.deps.Session.Playback.State(),
	}
}

// phaseOptions reads the optional duration and overlay flag of the
// recorder's pause and stop commands.
func (s *Service) phaseOptions(args []string) ([]recorder.PhaseOption, error) {
	var opts []recorder.PhaseOption
	start := 0
	if len(args) > 0 && args[0] != OverlayFlag {
		d, err := util.MillisArg(args, 0, "duration")
		if err != nil {
			return nil, err
		}
		opts = append(opts, recorder.WithDuration(d))
		start = 1
	}
	if util.HasFlag(args, start, OverlayFlag) {
		if s.deps.Overlay == nil {
			return nil, errors.New("overlay rendering is not configured")
		}
		raster, err := s.deps.Overlay(s.deps.Session.Board.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("rendering overlay: %w", err)
		}
		opts = append(opts, recorder.WithOverlay(raster))
	}
	return opts, nil
}

func (s *Service) handleRecordStart(e dispatcher.Event) (any, error) {
	return nil, s.deps.Session.Recorder.Start()
}

func (s *Service) handleRecordPause(e dispatcher.Event) (any, error) {
	opts, err := s.phaseOptions(util.CleanArgs(e.Args))
	if err != nil {
		return nil, err
	}
	if err := s.deps.Session.Recorder.Pause(opts...); err != nil {
		return nil, err
	}
	return len(s.deps.Session.Recorder.Phases()), nil
}

func (s *Service) handleRecordResume(e dispatcher.Event) (any, error) {
	return nil, s.deps.Session.Recorder.Resume()
}

func (s *Service) handleRecordStop(e dispatcher.Event) (any, error) {
	opts, err := s.phaseOptions(util.CleanArgs(e.Args))
	if err != nil {
		return nil, err
	}
	seq, err := s.deps.Session.Recorder.Stop(opts...)
	if seq.ID != "" {
		// the sequence is in the library even when restoring positions failed
		s.persistSequence(seq)
		s.persistBoard()
	}
	if err != nil {
		return nil, err
	}
	return v1.Summarize(seq), nil
}

func (s *Service) handlePlay(e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	id, err := util.StringArg(args, 0, "sequence id")
	if err != nil {
		return nil, err
	}
	eng := s.deps.Session.Playback
	err = s.startLoop(eng, func() error { return eng.Play(id, s.deps.Clock()) })
	if err != nil {
		return nil, err
	}
	return eng.State(), nil
}

func (s *Service) handlePlaybackPause(e dispatcher.Event) (any, error) {
	eng := s.deps.Session.Playback
	if err := eng.Pause(); err != nil {
		return nil, err
	}
	return eng.State(), nil
}

func (s *Service) handlePlaybackResume(e dispatcher.Event) (any, error) {
	eng := s.deps.Session.Playback
	if err := s.startLoop(eng, func() error { return eng.Resume(s.deps.Clock()) }); err != nil {
		return nil, err
	}
	return eng.State(), nil
}

func (s *Service) handlePlaybackStop(e dispatcher.Event) (any, error) {
	eng := s.deps.Session.Playback
	eng.Stop()
	return eng.State(), nil
}

func (s *Service) handleSeek(e dispatcher.Event) (any, error) {
	t, err := util.FloatArg(util.CleanArgs(e.Args), 0, "time")
	if err != nil {
		return nil, err
	}
	return s.deps.Session.Playback.Seek(t), nil
}

func (s *Service) handleSpeed(e dispatcher.Event) (any, error) {
	f, err := util.FloatArg(util.CleanArgs(e.Args), 0, "speed")
	if err != nil {
		return nil, err
	}
	return s.deps.Session.Playback.SetSpeed(f), nil
}

func (s *Service) handlePlaybackState(e dispatcher.Event) (any, error) {
	return s.deps.Session.Playback.State(), nil
}

func (s *Service) handleSamplerStart(e dispatcher.Event) (any, error) {
	return nil, s.deps.Session.Sampler.StartSampling()
}

func (s *Service) handleSamplerStop(e dispatcher.Event) (any, error) {
	smp := s.deps.Session.Sampler
	if err := smp.StopSampling(); err != nil {
		return nil, err
	}
	return smp.Len(), nil
}

func (s *Service) handleSamplerPlay(e dispatcher.Event) (any, error) {
	smp := s.deps.Session.Sampler
	if err := s.startLoop(smp, smp.Play); err != nil {
		return nil, err
	}
	return smp.Len(), nil
}

// handleSamplerPush records a raw pointer sample without moving the token.
func (s *Service) handleSamplerPush(e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	id, err := util.StringArg(args, 0, "token id")
	if err != nil {
		return nil, err
	}
	x, err := util.FloatArg(args, 1, "x")
	if err != nil {
		return nil, err
	}
	y, err := util.FloatArg(args, 2, "y")
	if err != nil {
		return nil, err
	}
	return nil, s.deps.Session.Sampler.Push(id, core.Point{X: x, Y: y})
}

func (s *Service) handleSamplerRewind(e dispatcher.Event) (any, error) {
	s.deps.Session.Sampler.Rewind()
	return nil, nil
}

func (s *Service) handleLibraryList(e dispatcher.Event) (any, error) {
	return s.Library(), nil
}

// Library lists the stored sequences.
func (s *Service) Library() []v1.SequenceSummary {
	seqs := s.deps.Session.Board.Sequences()
	out := make([]v1.SequenceSummary, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, v1.Summarize(seq))
	}
	return out
}

// Sequence returns a stored sequence by id.
func (s *Service) Sequence(id string) (core.AnimationSequence, error) {
	seq, ok := s.deps.Session.Board.Sequence(id)
	if !ok {
		return core.AnimationSequence{}, fmt.Errorf("%w: %s", board.ErrUnknownSequence, id)
	}
	return seq, nil
}

func (s *Service) handleLibraryDelete(e dispatcher.Event) (any, error) {
	id, err := util.StringArg(util.CleanArgs(e.Args), 0, "sequence id")
	if err != nil {
		return nil, err
	}
	return nil, s.DeleteSequence(id)
}

// DeleteSequence removes a sequence from the library and the backend.
// The playing sequence cannot be deleted.
func (s *Service) DeleteSequence(id string) error {
	st := s.deps.Session.Playback.State()
	if st.Status != core.PlaybackStopped && st.ActiveSequenceID == id {
		return fmt.Errorf("delete %s: %w", id, session.ErrPlaybackActive)
	}
	if err := s.deps.Session.Board.DeleteSequence(id); err != nil {
		return err
	}
	s.unpersistSequence(id)
	return nil
}

func (s *Service) handleLibrarySave(e dispatcher.Event) (any, error) {
	return s.SaveLibrary()
}

// SaveLibrary writes the board and every sequence to the backend and
// flushes it when it buffers writes.
func (s *Service) SaveLibrary() (SaveResult, error) {
	if s.deps.Backend == nil {
		return SaveResult{}, errors.New("no storage backend configured")
	}
	b := s.deps.Session.Board
	seqs := b.Sequences()
	if err := storage.SaveLibrary(s.deps.Backend, b.Snapshot(), seqs); err != nil {
		return SaveResult{}, err
	}
	if f, ok := s.deps.Backend.(storage.Flusher); ok {
		if err := f.Flush(); err != nil {
			return SaveResult{}, fmt.Errorf("flushing library: %w", err)
		}
	}
	res := SaveResult{Sequences: len(seqs)}
	if ex, ok := s.deps.Backend.(storage.Exporter); ok {
		res.Path = ex.ExportedPath()
	}
	return res, nil
}

// Refine replaces sequence id with the candidate decoded from payload and
// returns the new id.
func (s *Service) Refine(id string, payload []byte) (string, error) {
	old, ok := s.deps.Session.Board.Sequence(id)
	if !ok {
		return "", fmt.Errorf("refine: %w: %s", board.ErrUnknownSequence, id)
	}
	st := s.deps.Session.Playback.State()
	if st.Status != core.PlaybackStopped && st.ActiveSequenceID == id {
		return "", fmt.Errorf("refine %s: %w", id, session.ErrPlaybackActive)
	}
	candidate, err := refine.Decode(payload)
	if err != nil {
		return "", err
	}
	newID, err := s.deps.Session.Board.ReplaceSequence(id, refine.Merge(old, candidate))
	if err != nil {
		return "", err
	}
	if seq, ok := s.deps.Session.Board.Sequence(newID); ok {
		s.persistSequence(seq)
	}
	s.unpersistSequence(id)
	s.log.Info("sequence refined", "old", id, "new", newID)
	return newID, nil
}
