package board

import (
	"errors"
	"fmt"

	"github.com/tactiboard/engine/pkg/core"
)

var (
	ErrUnknownToken     = errors.New("unknown token")
	ErrDuplicateToken   = errors.New("duplicate token id")
	ErrTeamFull         = errors.New("team already has the maximum number of players")
	ErrDuplicateNumber  = errors.New("player number already used in team")
	ErrUnknownConnector = errors.New("unknown connector")
	ErrUnknownPath      = errors.New("unknown path")
	ErrInvalidMutation  = errors.New("invalid mutation")
)

// Mutation is one edit of the board. Every successful mutation applied
// through Store.Apply becomes a history checkpoint.
type Mutation interface {
	Name() string
	apply(s *core.Snapshot) error
}

// AddToken places a new token.
type AddToken struct {
	Token core.Token
}

// RemoveToken deletes a token by id.
type RemoveToken struct {
	ID string
}

// MoveToken sets one token's position.
type MoveToken struct {
	ID string
	To core.Point
}

// SetPositions sets the position of several tokens at once.
// Ids not on the board are ignored.
type SetPositions struct {
	Positions map[string]core.Point
}

// ApplyFormation moves a team's players to the slot matching their number.
type ApplyFormation struct {
	Team  core.Team
	Slots map[int]core.Point
}

// AddConnector draws a new arrow.
type AddConnector struct {
	Connector core.Connector
}

// DeleteConnector removes an arrow by id.
type DeleteConnector struct {
	ID string
}

// AddPath draws a new free-hand path.
type AddPath struct {
	Path core.FreehandPath
}

// DeletePath removes a free-hand path by id.
type DeletePath struct {
	ID string
}

// SetView replaces the view settings.
type SetView struct {
	View core.ViewSettings
}

// ClearDrawings removes every connector and path.
type ClearDrawings struct{}

func (AddToken) Name() string        { return "add_token" }
func (RemoveToken) Name() string     { return "remove_token" }
func (MoveToken) Name() string       { return "move_token" }
func (SetPositions) Name() string    { return "set_positions" }
func (ApplyFormation) Name() string  { return "apply_formation" }
func (AddConnector) Name() string    { return "add_connector" }
func (DeleteConnector) Name() string { return "delete_connector" }
func (AddPath) Name() string         { return "add_path" }
func (DeletePath) Name() string      { return "delete_path" }
func (SetView) Name() string         { return "set_view" }
func (ClearDrawings) Name() string   { return "clear_drawings" }

func (m AddToken) apply(s *core.Snapshot) error {
	t := m.Token
	if t.ID == "" {
		return fmt.Errorf("%w: token id is empty", ErrInvalidMutation)
	}
	if _, ok := s.Token(t.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, t.ID)
	}
	if t.Kind == "" {
		t.Kind = core.TokenPlayer
	}
	if t.Kind == core.TokenPlayer {
		players := 0
		for _, other := range s.Tokens {
			if other.Kind != core.TokenPlayer || other.Team != t.Team {
				continue
			}
			players++
			if other.Number == t.Number {
				return fmt.Errorf("%w: %s #%d", ErrDuplicateNumber, t.Team, t.Number)
			}
		}
		if players >= core.MaxPlayersPerTeam {
			return fmt.Errorf("%w: %s", ErrTeamFull, t.Team)
		}
	}
	s.Tokens = append(s.Tokens, t)
	return nil
}

func (m RemoveToken) apply(s *core.Snapshot) error {
	for i, t := range s.Tokens {
		if t.ID == m.ID {
			s.Tokens = append(s.Tokens[:i], s.Tokens[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownToken, m.ID)
}

func (m MoveToken) apply(s *core.Snapshot) error {
	for i := range s.Tokens {
		if s.Tokens[i].ID == m.ID {
			s.Tokens[i].Position = m.To
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownToken, m.ID)
}

func (m SetPositions) apply(s *core.Snapshot) error {
	for i := range s.Tokens {
		if p, ok := m.Positions[s.Tokens[i].ID]; ok {
			s.Tokens[i].Position = p
		}
	}
	return nil
}

func (m ApplyFormation) apply(s *core.Snapshot) error {
	for i := range s.Tokens {
		t := &s.Tokens[i]
		if t.Team != m.Team || t.Kind != core.TokenPlayer {
			continue
		}
		if p, ok := m.Slots[t.Number]; ok {
			t.Position = p
		}
	}
	return nil
}

func (m AddConnector) apply(s *core.Snapshot) error {
	if m.Connector.ID == "" || len(m.Connector.Points) < 2 {
		return fmt.Errorf("%w: connector needs an id and at least 2 points", ErrInvalidMutation)
	}
	for _, c := range s.Connectors {
		if c.ID == m.Connector.ID {
			return fmt.Errorf("%w: duplicate connector id %s", ErrInvalidMutation, c.ID)
		}
	}
	c := core.CloneConnectors([]core.Connector{m.Connector})[0]
	s.Connectors = append(s.Connectors, c)
	return nil
}

func (m DeleteConnector) apply(s *core.Snapshot) error {
	for i, c := range s.Connectors {
		if c.ID == m.ID {
			s.Connectors = append(s.Connectors[:i], s.Connectors[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownConnector, m.ID)
}

func (m AddPath) apply(s *core.Snapshot) error {
	if m.Path.ID == "" || len(m.Path.Points) < 2 {
		return fmt.Errorf("%w: path needs an id and at least 2 points", ErrInvalidMutation)
	}
	for _, p := range s.Paths {
		if p.ID == m.Path.ID {
			return fmt.Errorf("%w: duplicate path id %s", ErrInvalidMutation, p.ID)
		}
	}
	p := core.ClonePaths([]core.FreehandPath{m.Path})[0]
	s.Paths = append(s.Paths, p)
	return nil
}

func (m DeletePath) apply(s *core.Snapshot) error {
	for i, p := range s.Paths {
		if p.ID == m.ID {
			s.Paths = append(s.Paths[:i], s.Paths[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPath, m.ID)
}

func (m SetView) apply(s *core.Snapshot) error {
	s.View = m.View
	return nil
}

func (ClearDrawings) apply(s *core.Snapshot) error {
	s.Connectors = nil
	s.Paths = nil
	return nil
}
