// Package persistence is the reference adapter for the external
// configuration store that is the system of record for element
// identity: the three properties every element persists (Id, Ctrl_id,
// Axis) plus the pseudo/group extensions (Motor_group_id, Motor_list,
// Channel_list, Type). The Registry's reserve_id path uses it
// at startup to re-adopt ids before any plug-in touches them.
package persistence

import (
	"context"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// ElementRecord is the persisted row for one element. MotorGroupID,
// MotorList, and ChannelList are only meaningful for the element types
// that carry them (pseudo-motor, pseudo-counter); InstrumentType only for
// instruments.
type ElementRecord struct {
	ID             elementid.ID
	CtrlID         elementid.ID
	Axis           int
	MotorGroupID   elementid.ID
	MotorList      []int64
	ChannelList    []int64
	InstrumentType string
}

// Store is the persistence contract the Registry depends on. It is
// deliberately narrow: the configuration store is an external
// collaborator, so this package only needs to load the startup snapshot
// and keep it current as elements are added, removed, or reconfigured.
type Store interface {
	Save(ctx context.Context, rec ElementRecord) error
	Load(ctx context.Context, id elementid.ID) (ElementRecord, bool, error)
	All(ctx context.Context) ([]ElementRecord, error)
	Delete(ctx context.Context, id elementid.ID) error
}
