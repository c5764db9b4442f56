package persistence

import (
	"context"
	"fmt"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
	"github.com/r3e-network/pool-orchestrator/internal/registry"
)

// RestoreIDs replays every persisted element's id through the registry's
// reserve_id path so the allocator never hands out an id
// already in use by a record the plug-in layer hasn't re-created yet.
// This must run before any controller session or plug-in load begins.
func RestoreIDs(ctx context.Context, store Store, reg *registry.Registry) (int, error) {
	recs, err := store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted elements: %w", err)
	}
	for _, rec := range recs {
		reg.ReserveID(elementid.SpacePublic, rec.ID)
		if rec.MotorGroupID != elementid.InvalidID {
			reg.ReserveID(elementid.SpaceGhost, rec.MotorGroupID)
		}
	}
	return len(recs), nil
}
