package usecase

import (
	"context"
	"errors"

	"bloodlink/internal/domain"
)

// failingCertRepo wraps a repository and fails UpdateDecision, simulating a
// record store that dies after the ledger write committed.
type failingCertRepo struct {
	domain.CertificateRepository
}

func (r *failingCertRepo) UpdateDecision(ctx context.Context, id string, upd domain.DecisionUpdate) error {
	return errors.New("connection reset")
}

// rejectingLedger rejects every write without mutating anything.
type rejectingLedger struct {
	domain.Ledger
}

func (l *rejectingLedger) Write(ctx context.Context, caller, donor, hash string, eligible bool) (domain.WriteReceipt, error) {
	return domain.WriteReceipt{}, domain.ErrLedgerRejected
}

// blockingLedger hangs on Write until the caller's context expires,
// simulating a ledger that never confirms.
type blockingLedger struct {
	domain.Ledger
}

func (l *blockingLedger) Write(ctx context.Context, caller, donor, hash string, eligible bool) (domain.WriteReceipt, error) {
	<-ctx.Done()
	return domain.WriteReceipt{}, ctx.Err()
}

// failingFileStore errors on download, simulating an unreachable file store.
type failingFileStore struct{}

func (failingFileStore) Upload(ctx context.Context, ownerID, name string, data []byte) (string, error) {
	return "", errors.New("file store unavailable")
}

func (failingFileStore) Download(ctx context.Context, locator string) ([]byte, error) {
	return nil, errors.New("file store unavailable")
}

// denyAllPolicy rejects every upload.
type denyAllPolicy struct{}

func (denyAllPolicy) Evaluate(ctx context.Context, input domain.UploadInput) (domain.PolicyResult, error) {
	return domain.PolicyResult{
		Allow: false,
		Deny:  []domain.PolicyDenial{{Code: "DENY_ALL", Message: "uploads disabled"}},
	}, nil
}
