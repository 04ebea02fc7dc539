// Package sampler records raw per-token positions during a drag rehearsal
// and replays them one sample per frame. There is no easing, no duration and
// no compiled sequence.
package sampler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/pkg/core"
)

var (
	ErrAlreadySampling = errors.New("already sampling")
	ErrNotSampling     = errors.New("not sampling")
	ErrNoSamples       = errors.New("no samples recorded")
	ErrBusy            = errors.New("another animation channel is active")
)

// Board is the part of the snapshot store the sampler uses.
type Board interface {
	Positions() map[string]core.Point
	WriteFrame(f board.Frame)
}

type Sampler struct {
	mu     sync.Mutex
	board  Board
	logger *slog.Logger

	sampling bool
	playing  bool
	origin   map[string]core.Point
	samples  map[string][]core.Point
	index    int
	length   int

	generation uint64
	busy       func() bool
}

func New(b Board, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		board:   b,
		logger:  logger,
		samples: make(map[string][]core.Point),
	}
}

// SetBusyGuard installs the check used to refuse sampling or replay while
// recording or sequence playback is running.
func (s *Sampler) SetBusyGuard(busy func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

func (s *Sampler) isBusy() bool {
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	return busy != nil && busy()
}

// StartSampling snapshots the current positions and clears earlier samples.
func (s *Sampler) StartSampling() error {
	if s.isBusy() {
		return fmt.Errorf("start sampling: %w", ErrBusy)
	}
	origin := s.board.Positions()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampling {
		return ErrAlreadySampling
	}
	s.generation++
	s.sampling = true
	s.playing = false
	s.origin = origin
	s.samples = make(map[string][]core.Point)
	s.index = 0
	s.length = 0
	return nil
}

// Push appends one raw sample for a token.
func (s *Sampler) Push(tokenID string, p core.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sampling {
		return ErrNotSampling
	}
	s.samples[tokenID] = append(s.samples[tokenID], p)
	if n := len(s.samples[tokenID]); n > s.length {
		s.length = n
	}
	return nil
}

// StopSampling ends the capture. Samples are kept for Play.
func (s *Sampler) StopSampling() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sampling {
		return ErrNotSampling
	}
	s.sampling = false
	s.logger.Debug("sampling stopped", "tokens", len(s.samples), "length", s.length)
	return nil
}

// Play starts replay from the first sample.
func (s *Sampler) Play() error {
	if s.isBusy() {
		return fmt.Errorf("play samples: %w", ErrBusy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampling {
		return ErrAlreadySampling
	}
	if s.length == 0 {
		return ErrNoSamples
	}
	s.generation++
	s.index = 0
	s.playing = true
	return nil
}

// Tick writes the samples at the current index and advances it. Tokens with
// fewer samples hold their last one. Returns false once every list is exhausted.
func (s *Sampler) Tick() bool {
	return s.TickSession(s.Generation(), time.Time{})
}

// TickSession is Tick for a specific replay session. The wall clock is
// ignored: replay advances one sample per frame.
func (s *Sampler) TickSession(gen uint64, _ time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.playing {
		return false
	}
	if s.index >= s.length {
		s.playing = false
		return false
	}

	positions := make(map[string]core.Point, len(s.samples))
	for id, list := range s.samples {
		if len(list) == 0 {
			continue
		}
		positions[id] = list[min(s.index, len(list)-1)]
	}
	s.board.WriteFrame(board.Frame{Positions: positions})
	s.index++
	return true
}

// Rewind stops replay and puts tokens back where sampling started.
func (s *Sampler) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.playing = false
	s.index = 0
	if len(s.origin) > 0 {
		s.board.WriteFrame(board.Frame{Positions: core.ClonePositions(s.origin)})
	}
}

func (s *Sampler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Sampling reports whether samples are being captured.
func (s *Sampler) Sampling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampling
}

// Playing reports whether a replay is in progress.
func (s *Sampler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Active reports whether the sampler is capturing or replaying.
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampling || s.playing
}

// Len is the length of the longest sample list.
func (s *Sampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// Index is the next sample index replay will write.
func (s *Sampler) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
