package domain

import (
	"context"
	"time"
)

// LedgerRecord is the current on-ledger state for one donor address. Writes
// overwrite in place; history survives only in the event log.
type LedgerRecord struct {
	DonorAddress string
	ContentHash  string
	Eligible     bool
	Timestamp    time.Time
	Exists       bool
}

// WriteReceipt describes one confirmed ledger write.
type WriteReceipt struct {
	TxRef     string
	Timestamp time.Time
	Created   bool
}

// ReadResult is the verification tuple for a (donor, hash) query. Matches is
// false both for an absent record and for a stored hash that differs.
type ReadResult struct {
	Eligible  bool
	Timestamp time.Time
	Matches   bool
}

const (
	LedgerEventCreated         = "record_created"
	LedgerEventUpdated         = "record_updated"
	LedgerEventAdminTransition = "admin_transferred"
)

// LedgerEvent is one entry of the append-only audit log the ledger emits on
// every committed write.
type LedgerEvent struct {
	Type         string
	DonorAddress string
	OldHash      string
	NewHash      string
	Eligible     bool
	Timestamp    time.Time
	Writer       string
	OldAdmin     string
	NewAdmin     string
}

// Ledger is the verification ledger: a single-admin keyed store with public
// reads. All write failures are atomic rejections that leave state untouched
// and emit no event. Write blocks until the underlying transaction is
// confirmed; implementations must not retry on the caller's behalf.
type Ledger interface {
	Write(ctx context.Context, caller, donorAddress, certHash string, eligible bool) (WriteReceipt, error)
	Read(ctx context.Context, donorAddress, certHash string) (ReadResult, error)
	GetRecord(ctx context.Context, donorAddress string) (LedgerRecord, error)
	HasRecord(ctx context.Context, donorAddress string) (bool, error)
	TransferAdmin(ctx context.Context, caller, newAdmin string) error
	Events(ctx context.Context, donorAddress string) ([]LedgerEvent, error)
}
