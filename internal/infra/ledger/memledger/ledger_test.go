package memledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bloodlink/internal/domain"
	"bloodlink/internal/infra/crypto"
)

const (
	adminAddr    = "0x00000000000000000000000000000000000000a1"
	donorAddr    = "0x00000000000000000000000000000000000000d1"
	strangerAddr = "0x00000000000000000000000000000000000000e1"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := New(adminAddr)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestWriteAndGetRecord(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	hash := crypto.Digest([]byte("certificate"))

	receipt, err := ledger.Write(ctx, adminAddr, donorAddr, hash, true)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !receipt.Created {
		t.Fatal("first write should report created")
	}
	if !strings.HasPrefix(receipt.TxRef, crypto.HexPrefix) || len(receipt.TxRef) != 66 {
		t.Fatalf("unexpected tx ref: %s", receipt.TxRef)
	}

	rec, err := ledger.GetRecord(ctx, donorAddr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.Exists || rec.ContentHash != hash || !rec.Eligible {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestUnauthorizedWriteRejected(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	hash := crypto.Digest([]byte("certificate"))

	if _, err := ledger.Write(ctx, strangerAddr, donorAddr, hash, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	rec, err := ledger.GetRecord(ctx, donorAddr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Exists {
		t.Fatal("rejected write mutated ledger state")
	}
	events, err := ledger.Events(ctx, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("rejected write emitted %d events", len(events))
	}
}

func TestZeroHashRejected(t *testing.T) {
	ledger := newTestLedger(t)
	if _, err := ledger.Write(context.Background(), adminAddr, donorAddr, crypto.ZeroDigest, true); !errors.Is(err, domain.ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected, got %v", err)
	}
}

func TestOverwriteSemantics(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { now = now.Add(time.Minute); return now }
	ledger, err := NewWithClock(adminAddr, clock)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()

	first := crypto.Digest([]byte("first"))
	second := crypto.Digest([]byte("second"))

	r1, err := ledger.Write(ctx, adminAddr, donorAddr, first, true)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	r2, err := ledger.Write(ctx, adminAddr, donorAddr, second, false)
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if r2.Created {
		t.Fatal("second write should report updated, not created")
	}
	if !r2.Timestamp.After(r1.Timestamp) {
		t.Fatal("timestamp did not advance on overwrite")
	}

	rec, err := ledger.GetRecord(ctx, donorAddr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.ContentHash != second || rec.Eligible || !rec.Timestamp.Equal(r2.Timestamp) {
		t.Fatalf("record does not reflect second write: %+v", rec)
	}

	events, err := ledger.Events(ctx, donorAddr)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.LedgerEventCreated || events[1].Type != domain.LedgerEventUpdated {
		t.Fatalf("unexpected event types: %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].OldHash != first || events[1].NewHash != second {
		t.Fatalf("update event lost hash history: %+v", events[1])
	}
}

func TestReadMatching(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	hash := crypto.Digest([]byte("certificate"))
	other := crypto.Digest([]byte("other"))

	if _, err := ledger.Write(ctx, adminAddr, donorAddr, hash, true); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := ledger.Read(ctx, donorAddr, hash)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !res.Matches || !res.Eligible || res.Timestamp.IsZero() {
		t.Fatalf("expected matching read, got %+v", res)
	}

	res, err = ledger.Read(ctx, donorAddr, other)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Matches {
		t.Fatal("mismatched hash reported as matching")
	}

	res, err = ledger.Read(ctx, strangerAddr, hash)
	if err != nil {
		t.Fatalf("read absent: %v", err)
	}
	if res.Matches || res.Eligible || !res.Timestamp.IsZero() {
		t.Fatalf("absent record should read as zero values, got %+v", res)
	}
}

func TestHasRecord(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	has, err := ledger.HasRecord(ctx, donorAddr)
	if err != nil {
		t.Fatalf("has record: %v", err)
	}
	if has {
		t.Fatal("empty ledger reported a record")
	}

	if _, err := ledger.Write(ctx, adminAddr, donorAddr, crypto.Digest([]byte("certificate")), true); err != nil {
		t.Fatalf("write: %v", err)
	}
	has, err = ledger.HasRecord(ctx, donorAddr)
	if err != nil {
		t.Fatalf("has record: %v", err)
	}
	if !has {
		t.Fatal("written record not reported")
	}

	if _, err := ledger.HasRecord(ctx, "0x123"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
}

func TestCaseInsensitiveAddresses(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	hash := crypto.Digest([]byte("certificate"))

	upper := strings.ToUpper(donorAddr[2:])
	if _, err := ledger.Write(ctx, adminAddr, "0x"+upper, hash, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, err := ledger.GetRecord(ctx, donorAddr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !rec.Exists {
		t.Fatal("uppercase write not visible through lowercase read")
	}
}

func TestTransferAdmin(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	hash := crypto.Digest([]byte("certificate"))

	if err := ledger.TransferAdmin(ctx, strangerAddr, strangerAddr); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	zero := "0x" + strings.Repeat("0", 40)
	if err := ledger.TransferAdmin(ctx, adminAddr, zero); !errors.Is(err, domain.ErrLedgerRejected) {
		t.Fatalf("expected ErrLedgerRejected for zero address, got %v", err)
	}

	if err := ledger.TransferAdmin(ctx, adminAddr, strangerAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := ledger.Write(ctx, adminAddr, donorAddr, hash, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("old admin still authorized after transfer: %v", err)
	}
	if _, err := ledger.Write(ctx, strangerAddr, donorAddr, hash, true); err != nil {
		t.Fatalf("new admin rejected: %v", err)
	}

	events, err := ledger.Events(ctx, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var transfer *domain.LedgerEvent
	for i := range events {
		if events[i].Type == domain.LedgerEventAdminTransition {
			transfer = &events[i]
		}
	}
	if transfer == nil {
		t.Fatal("admin transfer emitted no event")
	}
	if transfer.OldAdmin != adminAddr || transfer.NewAdmin != strangerAddr {
		t.Fatalf("transfer event fields wrong: %+v", transfer)
	}
}
