package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// PostgresStore is the reference Store backed by a single pool_elements
// table: raw SQL behind a narrow interface, layered on sqlx.DB for the
// Get/Select convenience methods.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already-opened database handle. Callers
// typically build db with sqlx.Connect("postgres", dsn).
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type elementRow struct {
	ID             int64         `db:"id"`
	CtrlID         int64         `db:"ctrl_id"`
	Axis           int           `db:"axis"`
	MotorGroupID   sql.NullInt64 `db:"motor_group_id"`
	MotorList      pq.Int64Array `db:"motor_list"`
	ChannelList    pq.Int64Array `db:"channel_list"`
	InstrumentType sql.NullString `db:"instrument_type"`
}

func (r elementRow) toRecord() ElementRecord {
	rec := ElementRecord{
		ID:          elementid.ID(r.ID),
		CtrlID:      elementid.ID(r.CtrlID),
		Axis:        r.Axis,
		MotorList:   []int64(r.MotorList),
		ChannelList: []int64(r.ChannelList),
	}
	if r.MotorGroupID.Valid {
		rec.MotorGroupID = elementid.ID(r.MotorGroupID.Int64)
	}
	if r.InstrumentType.Valid {
		rec.InstrumentType = r.InstrumentType.String
	}
	return rec
}

// Save upserts one element's persisted identity: the three mandatory
// fields plus the pseudo/group/instrument extensions.
func (s *PostgresStore) Save(ctx context.Context, rec ElementRecord) error {
	var motorGroupID sql.NullInt64
	if rec.MotorGroupID != elementid.InvalidID {
		motorGroupID = sql.NullInt64{Int64: int64(rec.MotorGroupID), Valid: true}
	}
	var instrumentType sql.NullString
	if rec.InstrumentType != "" {
		instrumentType = sql.NullString{String: rec.InstrumentType, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pool_elements (id, ctrl_id, axis, motor_group_id, motor_list, channel_list, instrument_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			ctrl_id = EXCLUDED.ctrl_id,
			axis = EXCLUDED.axis,
			motor_group_id = EXCLUDED.motor_group_id,
			motor_list = EXCLUDED.motor_list,
			channel_list = EXCLUDED.channel_list,
			instrument_type = EXCLUDED.instrument_type
	`, int64(rec.ID), int64(rec.CtrlID), rec.Axis, motorGroupID, pq.Array(rec.MotorList), pq.Array(rec.ChannelList), instrumentType)
	return err
}

// Load fetches one element's persisted identity by id.
func (s *PostgresStore) Load(ctx context.Context, id elementid.ID) (ElementRecord, bool, error) {
	var row elementRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, ctrl_id, axis, motor_group_id, motor_list, channel_list, instrument_type
		FROM pool_elements WHERE id = $1
	`, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return ElementRecord{}, false, nil
	}
	if err != nil {
		return ElementRecord{}, false, err
	}
	return row.toRecord(), true, nil
}

// All returns the full persisted element set, used once at process
// startup to rebuild the Registry's id allocator state (reserve_id) ahead
// of any plug-in load.
func (s *PostgresStore) All(ctx context.Context) ([]ElementRecord, error) {
	var rows []elementRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, ctrl_id, axis, motor_group_id, motor_list, channel_list, instrument_type
		FROM pool_elements ORDER BY id
	`); err != nil {
		return nil, err
	}
	out := make([]ElementRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

// Delete removes one element's persisted identity, called when an
// element is removed from the registry permanently. Quiesce/reload never
// deletes: reload swaps the plug-in, not the identity.
func (s *PostgresStore) Delete(ctx context.Context, id elementid.ID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pool_elements WHERE id = $1`, int64(id))
	return err
}
