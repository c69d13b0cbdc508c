package usecase

import (
	"context"
	"time"

	"bloodlink/internal/domain"
	"bloodlink/internal/infra/crypto"
)

// FileVerification is the verdict for a supplied file against a donor
// address. Matches=false is a valid negative result, not a failure.
type FileVerification struct {
	Hash      string
	Eligible  bool
	Timestamp time.Time
	Matches   bool
}

type AddressVerification struct {
	Found     bool
	Hash      string
	Eligible  bool
	Timestamp time.Time
}

// VerifyCertificate is the public read-only workflow. It is defined purely in
// terms of the ledger so that a party with no database access can verify.
type VerifyCertificate struct {
	Ledger domain.Ledger
}

func (uc *VerifyCertificate) ByFile(ctx context.Context, fileBytes []byte, address string) (*FileVerification, error) {
	if len(fileBytes) == 0 {
		return nil, domain.ErrMissingFile
	}
	donor, err := crypto.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	hash := crypto.Digest(fileBytes)

	result, err := uc.Ledger.Read(ctx, donor, hash)
	if err != nil {
		return nil, err
	}
	return &FileVerification{
		Hash:      hash,
		Eligible:  result.Eligible,
		Timestamp: result.Timestamp,
		Matches:   result.Matches,
	}, nil
}

func (uc *VerifyCertificate) ByAddress(ctx context.Context, address string) (*AddressVerification, error) {
	donor, err := crypto.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	rec, err := uc.Ledger.GetRecord(ctx, donor)
	if err != nil {
		return nil, err
	}
	if !rec.Exists {
		return &AddressVerification{Found: false}, nil
	}
	return &AddressVerification{
		Found:     true,
		Hash:      rec.ContentHash,
		Eligible:  rec.Eligible,
		Timestamp: rec.Timestamp,
	}, nil
}
