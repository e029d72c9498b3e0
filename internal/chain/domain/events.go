// Package domain models blockchain mirror events as a closed set of typed
// payloads. Events are decoded once at the boundary and handled by
// exhaustive switching, never by probing loose maps.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event is one mirror write. Implementations are the only event shapes the
// gateway accepts.
type Event interface {
	EventName() string
}

// PenaltyRecorded mirrors a daily penalty deduction.
type PenaltyRecorded struct {
	ContractCode string `json:"contractCode"`
	Party        string `json:"party"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
}

func (PenaltyRecorded) EventName() string { return "penalty.recorded" }

// ContractOverdue mirrors the first penalty of a period: the contract is
// marked overdue and the penalty applied in one distinguished write.
type ContractOverdue struct {
	ContractCode string `json:"contractCode"`
	Period       string `json:"period"`
	Party        string `json:"party"`
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
}

func (ContractOverdue) EventName() string { return "contract.overdue" }

// ContractTerminated mirrors a termination settlement.
type ContractTerminated struct {
	ContractCode string `json:"contractCode"`
	Reason       string `json:"reason"`
}

func (ContractTerminated) EventName() string { return "contract.terminated" }

// Decode parses a payload for the named event. Unknown names are an error;
// new event shapes must be added here, not handled ad hoc.
func Decode(name string, payload []byte) (Event, error) {
	switch name {
	case PenaltyRecorded{}.EventName():
		var ev PenaltyRecorded
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ev, nil
	case ContractOverdue{}.EventName():
		var ev ContractOverdue
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ev, nil
	case ContractTerminated{}.EventName():
		var ev ContractTerminated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown chain event %q", name)
	}
}

// OutboxRow is the persisted record of one attempted mirror write. Rows are
// pruned by the retention job; the table is the durable replacement for the
// unbounded in-process event log the platform used to keep.
type OutboxRow struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	EventName    string            `gorm:"type:text;not null;index"`
	ContractCode string            `gorm:"type:text;not null;index"`
	Payload      datatypes.JSONMap `gorm:"type:jsonb"`
	SubmittedAt  *time.Time        `gorm:""`
	LastError    string            `gorm:"type:text"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (OutboxRow) TableName() string { return "chain_events" }
