// Package pg persists the auction event stream. The journal is an observer
// of the in-process hub: engine invariants never depend on it.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vaultbid.org/internal/obs"
	"vaultbid.org/internal/stream"
)

type Journal struct {
	db *sql.DB
}

func Open(dsn string) (*Journal, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Journal{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sql.DB) *Journal { return &Journal{db: db} }

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) DB() *sql.DB { return j.db }

// Append records one event. Events arrive already stamped with a ULID, so
// replays after a reconnect are conflict-ignored.
func (j *Journal) Append(ctx context.Context, evt stream.Event) error {
	_, err := j.db.ExecContext(ctx, `
		insert into auction_events(id, kind, vault_id, actor, counterparty, amount, occurred_at)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (id) do nothing
	`, evt.ID, string(evt.Kind), int64(evt.VaultID), evt.Actor, evt.Counterparty, int64(evt.Amount), evt.Timestamp)
	return err
}

// VaultEvents returns the chronological event history for one vault.
func (j *Journal) VaultEvents(ctx context.Context, vaultID uint64, limit int) ([]stream.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		select id, kind, vault_id, actor, counterparty, amount, occurred_at
		from auction_events
		where vault_id = $1
		order by sequence asc
		limit $2
	`, int64(vaultID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []stream.Event
	for rows.Next() {
		var evt stream.Event
		var kind string
		var vid, amount int64
		if err := rows.Scan(&evt.ID, &kind, &vid, &evt.Actor, &evt.Counterparty, &amount, &evt.Timestamp); err != nil {
			return nil, err
		}
		evt.Kind = stream.Kind(kind)
		evt.VaultID = uint64(vid)
		evt.Amount = uint64(amount)
		res = append(res, evt)
	}
	return res, rows.Err()
}

// Run drains the hub into the journal until the context is cancelled.
// Append failures are logged and skipped; the stream must keep flowing.
func (j *Journal) Run(ctx context.Context, hub *stream.Hub) {
	ch := hub.Subscribe(ctx)
	for evt := range ch {
		if err := j.Append(ctx, evt); err != nil {
			obs.Logger().Printf(`{"level":"error","msg":"journal append failed","event_id":%q,"error":%q}`, evt.ID, err.Error())
		}
	}
}
