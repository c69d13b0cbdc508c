package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bloodlink/internal/domain"
	"bloodlink/internal/infra/crypto"

	"github.com/sirupsen/logrus"
)

type DecideRequest struct {
	CertificateID  string
	ClaimedAddress string
	Eligible       bool
	Notes          string
	ReviewerID     string
}

type Decision struct {
	ContentHash  string
	DonorAddress string
	TxRef        string
	Timestamp    time.Time
	Created      bool
}

// ReconcileReport compares the ledger's committed state for a certificate's
// claimed address against the record store and a freshly recomputed digest.
// It is the read-only recovery path after an ambiguous timeout or a reported
// inconsistency: it never writes anywhere.
type ReconcileReport struct {
	CertificateID string
	DonorAddress  string
	FileHash      string

	LedgerExists    bool
	LedgerHash      string
	LedgerEligible  bool
	LedgerTimestamp time.Time

	LedgerMatchesFile   bool
	RecordMatchesLedger bool
}

// DecideCertificate turns a reviewer decision into the ledger write plus the
// record-store update, in that strict order. The two stores fail
// independently; a record-store failure after a committed ledger write is
// reported as its own error kind and never retried.
type DecideCertificate struct {
	Certs          domain.CertificateRepository
	Files          domain.FileStore
	Ledger         domain.Ledger
	ConfirmTimeout time.Duration
	Log            *logrus.Logger

	adminMu sync.RWMutex
	admin   string
}

// SetAdminAddress installs the ledger admin the orchestrator writes as.
// Admin transfers call this concurrently with in-flight decisions.
func (uc *DecideCertificate) SetAdminAddress(addr string) {
	uc.adminMu.Lock()
	uc.admin = addr
	uc.adminMu.Unlock()
}

func (uc *DecideCertificate) AdminAddress() string {
	uc.adminMu.RLock()
	defer uc.adminMu.RUnlock()
	return uc.admin
}

func (uc *DecideCertificate) Execute(ctx context.Context, req DecideRequest) (*Decision, error) {
	if req.CertificateID == "" {
		return nil, domain.ErrNotFound
	}

	cert, err := uc.Certs.GetByID(ctx, req.CertificateID)
	if err != nil {
		return nil, err
	}

	claimed := req.ClaimedAddress
	if claimed == "" {
		claimed = cert.ClaimedAddress
	}
	address, err := crypto.NormalizeAddress(claimed)
	if err != nil {
		return nil, err
	}

	fileBytes, err := uc.Files.Download(ctx, cert.FileRef)
	if err != nil {
		return nil, fmt.Errorf("%w: file download: %v", domain.ErrUpstreamUnavailable, err)
	}

	// The authoritative hash is always recomputed from the stored bytes. A
	// stale record or a compromised client must not be able to anchor a
	// mismatched digest.
	hash := crypto.Digest(fileBytes)

	writeCtx := ctx
	if uc.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, uc.ConfirmTimeout)
		defer cancel()
	}
	receipt, err := uc.Ledger.Write(writeCtx, uc.AdminAddress(), address, hash, req.Eligible)
	if err != nil {
		// Ledger failures are atomic rejections; the certificate record is
		// untouched and the caller may resubmit after re-querying.
		return nil, err
	}

	upd := domain.DecisionUpdate{
		ContentHash: hash,
		Eligibility: eligibilityFor(req.Eligible),
		LedgerTxRef: receipt.TxRef,
		ReviewerID:  req.ReviewerID,
		Notes:       req.Notes,
		DecidedAt:   receipt.Timestamp,
	}
	if err := uc.Certs.UpdateDecision(ctx, cert.ID, upd); err != nil {
		inconsistency := &domain.InconsistencyError{
			CertificateID: cert.ID,
			DonorAddress:  address,
			ContentHash:   hash,
			TxRef:         receipt.TxRef,
			Cause:         err,
		}
		if uc.Log != nil {
			uc.Log.WithFields(logrus.Fields{
				"certificate_id": cert.ID,
				"donor_address":  address,
				"tx_ref":         receipt.TxRef,
			}).Error("ledger write committed but record update failed; manual reconciliation required")
		}
		return nil, inconsistency
	}

	if uc.Log != nil {
		uc.Log.WithFields(logrus.Fields{
			"certificate_id": cert.ID,
			"donor_address":  address,
			"eligible":       req.Eligible,
			"tx_ref":         receipt.TxRef,
		}).Info("certificate decision anchored")
	}

	return &Decision{
		ContentHash:  hash,
		DonorAddress: address,
		TxRef:        receipt.TxRef,
		Timestamp:    receipt.Timestamp,
		Created:      receipt.Created,
	}, nil
}

// Reconcile re-reads the ledger for a certificate's claimed address. Callers
// that observed a timeout or an inconsistency error use this to learn whether
// the write landed before deciding anything; a blind resubmit would overwrite
// the ledger record with a fresh timestamp.
func (uc *DecideCertificate) Reconcile(ctx context.Context, certificateID string) (*ReconcileReport, error) {
	cert, err := uc.Certs.GetByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	address, err := crypto.NormalizeAddress(cert.ClaimedAddress)
	if err != nil {
		return nil, err
	}

	fileBytes, err := uc.Files.Download(ctx, cert.FileRef)
	if err != nil {
		return nil, fmt.Errorf("%w: file download: %v", domain.ErrUpstreamUnavailable, err)
	}
	fileHash := crypto.Digest(fileBytes)

	ledgerRec, err := uc.Ledger.GetRecord(ctx, address)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		CertificateID: cert.ID,
		DonorAddress:  address,
		FileHash:      fileHash,
		LedgerExists:  ledgerRec.Exists,
	}
	if !ledgerRec.Exists {
		return report, nil
	}
	report.LedgerHash = ledgerRec.ContentHash
	report.LedgerEligible = ledgerRec.Eligible
	report.LedgerTimestamp = ledgerRec.Timestamp
	report.LedgerMatchesFile = ledgerRec.ContentHash == fileHash
	report.RecordMatchesLedger = cert.ContentHash == ledgerRec.ContentHash &&
		cert.Eligibility == eligibilityFor(ledgerRec.Eligible) &&
		cert.LedgerTxRef != ""
	return report, nil
}

func eligibilityFor(eligible bool) domain.Eligibility {
	if eligible {
		return domain.EligibilityEligible
	}
	return domain.EligibilityIneligible
}
