package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"vaultbid.org/internal/stream"
)

func TestAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	evt := stream.NewEvent(stream.KindBidPlaced, 7, "alice")
	evt.Counterparty = "bob"
	evt.Amount = 105

	mock.ExpectExec("insert into auction_events").
		WithArgs(evt.ID, "auction.bid", int64(7), "alice", "bob", int64(105), evt.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	j := NewWithDB(db)
	if err := j.Append(context.Background(), evt); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVaultEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "kind", "vault_id", "actor", "counterparty", "amount", "occurred_at"}).
		AddRow("evt-1", "auction.started", int64(7), "seller", "", int64(0), ts).
		AddRow("evt-2", "auction.bid", int64(7), "alice", "", int64(101), ts.Add(time.Minute))

	mock.ExpectQuery("select id, kind, vault_id, actor, counterparty, amount, occurred_at").
		WithArgs(int64(7), 100).
		WillReturnRows(rows)

	j := NewWithDB(db)
	events, err := j.VaultEvents(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("VaultEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != stream.KindAuctionStarted || events[1].Amount != 101 {
		t.Fatalf("unexpected events: %#v", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunDrainsHub(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into auction_events").
		WithArgs(sqlmock.AnyArg(), "vault.created", int64(3), "seller", "", int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	hub := stream.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	j := NewWithDB(db)
	go func() {
		j.Run(ctx, hub)
		close(done)
	}()

	// Let the subscriber register before publishing.
	time.Sleep(50 * time.Millisecond)
	hub.Publish(stream.NewEvent(stream.KindVaultCreated, 3, "seller"))
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
