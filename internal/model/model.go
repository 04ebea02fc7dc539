// Package model holds the relational rows the gorm-based storage backends persist.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tactiboard/engine/pkg/core"
	"gorm.io/datatypes"
)

// CurrentBoard is the name of the row holding the working board.
const CurrentBoard = "current"

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&BoardRecord{},
	&SequenceRecord{},
}

// BoardRecord stores a board snapshot as a JSON document.
type BoardRecord struct {
	Name      string         `json:"name" gorm:"primaryKey;size:64"`
	Snapshot  datatypes.JSON `json:"snapshot"`
	Tokens    int            `json:"tokens"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*BoardRecord) TableName() string {
	return "boards"
}

// SequenceRecord stores one library sequence. The listing columns are
// denormalized from the JSON document.
type SequenceRecord struct {
	ID            string         `json:"id" gorm:"primaryKey;size:64"`
	Title         string         `json:"title" gorm:"size:255"`
	TotalDuration float64        `json:"totalDuration"`
	StepCount     int            `json:"stepCount"`
	Loop          bool           `json:"loop"`
	Data          datatypes.JSON `json:"data"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"index:idx_sequences_created_at"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (*SequenceRecord) TableName() string {
	return "sequences"
}

// NewBoardRecord encodes snap under name.
func NewBoardRecord(name string, snap core.Snapshot) (BoardRecord, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return BoardRecord{}, fmt.Errorf("encode board: %w", err)
	}
	return BoardRecord{
		Name:     name,
		Snapshot: datatypes.JSON(data),
		Tokens:   len(snap.Tokens),
	}, nil
}

// ToSnapshot decodes the stored snapshot.
func (r BoardRecord) ToSnapshot() (core.Snapshot, error) {
	var snap core.Snapshot
	if err := json.Unmarshal(r.Snapshot, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode board %s: %w", r.Name, err)
	}
	return snap, nil
}

// NewSequenceRecord encodes seq.
func NewSequenceRecord(seq core.AnimationSequence) (SequenceRecord, error) {
	if seq.ID == "" {
		return SequenceRecord{}, fmt.Errorf("encode sequence: empty id")
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return SequenceRecord{}, fmt.Errorf("encode sequence %s: %w", seq.ID, err)
	}
	return SequenceRecord{
		ID:            seq.ID,
		Title:         seq.Title,
		TotalDuration: seq.TotalDuration,
		StepCount:     len(seq.Steps),
		Loop:          seq.Loop,
		Data:          datatypes.JSON(data),
	}, nil
}

// ToSequence decodes the stored sequence.
func (r SequenceRecord) ToSequence() (core.AnimationSequence, error) {
	var seq core.AnimationSequence
	if err := json.Unmarshal(r.Data, &seq); err != nil {
		return core.AnimationSequence{}, fmt.Errorf("decode sequence %s: %w", r.ID, err)
	}
	return seq, nil
}
