package memledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"bloodlink/internal/domain"
	"bloodlink/internal/infra/crypto"
)

// Ledger is the in-process verification ledger used in dev mode and tests.
// It mirrors the chaincode semantics exactly: mutable current-state mapping
// plus an append-only event log, both updated atomically under one lock, one
// designated admin writer.
type Ledger struct {
	mu      sync.RWMutex
	admin   string
	records map[string]record
	events  []domain.LedgerEvent
	clock   func() time.Time
	seq     uint64
}

type record struct {
	contentHash string
	eligible    bool
	timestamp   time.Time
}

func New(adminAddress string) (*Ledger, error) {
	admin, err := crypto.NormalizeAddress(adminAddress)
	if err != nil {
		return nil, fmt.Errorf("admin address: %w", err)
	}
	return &Ledger{
		admin:   admin,
		records: make(map[string]record),
		clock:   time.Now,
	}, nil
}

func NewWithClock(adminAddress string, clock func() time.Time) (*Ledger, error) {
	l, err := New(adminAddress)
	if err != nil {
		return nil, err
	}
	if clock != nil {
		l.clock = clock
	}
	return l, nil
}

func (l *Ledger) Write(ctx context.Context, caller, donorAddress, certHash string, eligible bool) (domain.WriteReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.WriteReceipt{}, err
	}
	callerAddr, err := crypto.NormalizeAddress(caller)
	if err != nil {
		return domain.WriteReceipt{}, err
	}
	donor, err := crypto.NormalizeAddress(donorAddress)
	if err != nil {
		return domain.WriteReceipt{}, err
	}
	hash, err := crypto.NormalizeDigest(certHash)
	if err != nil {
		return domain.WriteReceipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if callerAddr != l.admin {
		return domain.WriteReceipt{}, domain.ErrUnauthorized
	}
	if hash == crypto.ZeroDigest {
		return domain.WriteReceipt{}, fmt.Errorf("%w: empty certificate hash", domain.ErrLedgerRejected)
	}

	now := l.clock().UTC()
	previous, existed := l.records[donor]

	l.seq++
	l.records[donor] = record{
		contentHash: hash,
		eligible:    eligible,
		timestamp:   now,
	}

	event := domain.LedgerEvent{
		DonorAddress: donor,
		NewHash:      hash,
		Eligible:     eligible,
		Timestamp:    now,
		Writer:       callerAddr,
	}
	if existed {
		event.Type = domain.LedgerEventUpdated
		event.OldHash = previous.contentHash
	} else {
		event.Type = domain.LedgerEventCreated
	}
	l.events = append(l.events, event)

	return domain.WriteReceipt{
		TxRef:     l.txRef(donor, hash, now),
		Timestamp: now,
		Created:   !existed,
	}, nil
}

func (l *Ledger) Read(ctx context.Context, donorAddress, certHash string) (domain.ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReadResult{}, err
	}
	donor, err := crypto.NormalizeAddress(donorAddress)
	if err != nil {
		return domain.ReadResult{}, err
	}
	hash, err := crypto.NormalizeDigest(certHash)
	if err != nil {
		return domain.ReadResult{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[donor]
	if !ok {
		return domain.ReadResult{}, nil
	}
	return domain.ReadResult{
		Eligible:  rec.eligible,
		Timestamp: rec.timestamp,
		Matches:   rec.contentHash == hash,
	}, nil
}

func (l *Ledger) GetRecord(ctx context.Context, donorAddress string) (domain.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerRecord{}, err
	}
	donor, err := crypto.NormalizeAddress(donorAddress)
	if err != nil {
		return domain.LedgerRecord{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[donor]
	if !ok {
		return domain.LedgerRecord{DonorAddress: donor}, nil
	}
	return domain.LedgerRecord{
		DonorAddress: donor,
		ContentHash:  rec.contentHash,
		Eligible:     rec.eligible,
		Timestamp:    rec.timestamp,
		Exists:       true,
	}, nil
}

func (l *Ledger) HasRecord(ctx context.Context, donorAddress string) (bool, error) {
	rec, err := l.GetRecord(ctx, donorAddress)
	if err != nil {
		return false, err
	}
	return rec.Exists, nil
}

func (l *Ledger) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	callerAddr, err := crypto.NormalizeAddress(caller)
	if err != nil {
		return err
	}
	next, err := crypto.NormalizeAddress(newAdmin)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if callerAddr != l.admin {
		return domain.ErrUnauthorized
	}
	if isZeroAddress(next) {
		return fmt.Errorf("%w: new admin is the zero address", domain.ErrLedgerRejected)
	}

	previous := l.admin
	l.admin = next
	l.events = append(l.events, domain.LedgerEvent{
		Type:      domain.LedgerEventAdminTransition,
		Timestamp: l.clock().UTC(),
		Writer:    previous,
		OldAdmin:  previous,
		NewAdmin:  next,
	})
	return nil
}

// Events returns the emitted events for one donor address, or the whole log
// when donorAddress is empty. Admin transfers appear only in the full log.
func (l *Ledger) Events(ctx context.Context, donorAddress string) ([]domain.LedgerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	donor := ""
	if donorAddress != "" {
		normalized, err := crypto.NormalizeAddress(donorAddress)
		if err != nil {
			return nil, err
		}
		donor = normalized
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.LedgerEvent, 0, len(l.events))
	for _, event := range l.events {
		if donor != "" && event.DonorAddress != donor {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

// Admin returns the current admin address.
func (l *Ledger) Admin() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.admin
}

func (l *Ledger) txRef(donor, hash string, at time.Time) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], l.seq)
	sum := sha256.New()
	sum.Write(buf[:])
	sum.Write([]byte(donor))
	sum.Write([]byte(hash))
	binary.BigEndian.PutUint64(buf[:], uint64(at.UnixNano()))
	sum.Write(buf[:])
	return crypto.HexPrefix + hex.EncodeToString(sum.Sum(nil))
}

func isZeroAddress(addr string) bool {
	for _, r := range addr[len(crypto.HexPrefix):] {
		if r != '0' {
			return false
		}
	}
	return true
}
