package domain

import (
	"context"
	"time"
)

// Eligibility is the tri-state decision outcome attached to a certificate.
// Unset means no reviewer has decided yet.
type Eligibility string

const (
	EligibilityUnset      Eligibility = ""
	EligibilityEligible   Eligibility = "eligible"
	EligibilityIneligible Eligibility = "ineligible"
)

func (e Eligibility) Decided() bool {
	return e == EligibilityEligible || e == EligibilityIneligible
}

// CertificateRecord is one uploaded certificate. The content hash, the
// eligibility, and the ledger tx ref are set together by a decision and must
// correspond to one committed ledger write.
type CertificateRecord struct {
	ID             string
	DonorID        string
	FileRef        string
	ClaimedAddress string
	FileName       string
	MediaType      string
	ContentHash    string
	Eligibility    Eligibility
	LedgerTxRef    string
	ReviewerID     string
	Notes          string
	CreatedAt      time.Time
	DecidedAt      *time.Time
	UpdatedAt      time.Time
}

// DecisionUpdate carries the fields a reviewer decision sets on a record.
type DecisionUpdate struct {
	ContentHash string
	Eligibility Eligibility
	LedgerTxRef string
	ReviewerID  string
	Notes       string
	DecidedAt   time.Time
}

type CertificateRepository interface {
	Insert(ctx context.Context, rec CertificateRecord) error
	GetByID(ctx context.Context, id string) (*CertificateRecord, error)
	UpdateDecision(ctx context.Context, id string, upd DecisionUpdate) error
	ListPending(ctx context.Context) ([]CertificateRecord, error)
	ListDecided(ctx context.Context) ([]CertificateRecord, error)
}
