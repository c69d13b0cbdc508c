package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidAddress      = errors.New("invalid chain address")
	ErrInvalidHash         = errors.New("invalid content hash")
	ErrMissingFile         = errors.New("certificate file is required")
	ErrFileRejected        = errors.New("certificate file rejected")
	ErrHashMismatch        = errors.New("client hash does not match server hash")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrLedgerRejected      = errors.New("ledger rejected write")
	ErrInconsistent        = errors.New("ledger committed but record update failed")
)

// InconsistencyError reports the exact ledger write that committed while the
// record store update failed. Recovery is manual (see Reconcile); resubmitting
// the decision would overwrite the ledger record with a new timestamp.
type InconsistencyError struct {
	CertificateID string
	DonorAddress  string
	ContentHash   string
	TxRef         string
	Cause         error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger write %s for %s committed but record %s was not updated: %v",
		e.TxRef, e.DonorAddress, e.CertificateID, e.Cause)
}

func (e *InconsistencyError) Unwrap() error {
	return ErrInconsistent
}
