package usecase

import (
	"context"
	"fmt"

	"bloodlink/internal/domain"
	"bloodlink/internal/infra/crypto"

	"github.com/google/uuid"
)

type SubmitCertificateRequest struct {
	DonorID        string
	ClaimedAddress string
	FileName       string
	MediaType      string
	FileBytes      []byte

	// ClientHash is the digest the donor's client computed before upload.
	// It is advisory: a divergence from the server-side digest rejects the
	// upload loudly, and the orchestrator never trusts it for the ledger.
	ClientHash string
}

// SubmitCertificate creates a pending certificate record: policy gate, server
// digest, file upload, record insert.
type SubmitCertificate struct {
	Certs  domain.CertificateRepository
	Files  domain.FileStore
	Policy domain.UploadPolicy
	Clock  Clock
}

func (uc *SubmitCertificate) Execute(ctx context.Context, req SubmitCertificateRequest) (*domain.CertificateRecord, error) {
	if req.DonorID == "" {
		return nil, fmt.Errorf("%w: donor id is required", domain.ErrFileRejected)
	}
	if len(req.FileBytes) == 0 {
		return nil, domain.ErrMissingFile
	}
	address, err := crypto.NormalizeAddress(req.ClaimedAddress)
	if err != nil {
		return nil, err
	}

	if uc.Policy != nil {
		result, err := uc.Policy.Evaluate(ctx, domain.UploadInput{
			SizeBytes: int64(len(req.FileBytes)),
			MediaType: req.MediaType,
			FileName:  req.FileName,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: upload policy: %v", domain.ErrUpstreamUnavailable, err)
		}
		if !result.Allow {
			reason := "rejected by upload policy"
			if len(result.Deny) > 0 {
				reason = result.Deny[0].Message
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrFileRejected, reason)
		}
	}

	hash := crypto.Digest(req.FileBytes)
	if req.ClientHash != "" {
		clientHash, err := crypto.NormalizeDigest(req.ClientHash)
		if err != nil {
			return nil, err
		}
		if clientHash != hash {
			return nil, domain.ErrHashMismatch
		}
	}

	locator, err := uc.Files.Upload(ctx, req.DonorID, req.FileName, req.FileBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: file upload: %v", domain.ErrUpstreamUnavailable, err)
	}

	rec := domain.CertificateRecord{
		ID:             uuid.NewString(),
		DonorID:        req.DonorID,
		FileRef:        locator,
		ClaimedAddress: address,
		FileName:       req.FileName,
		MediaType:      req.MediaType,
		ContentHash:    hash,
		Eligibility:    domain.EligibilityUnset,
		CreatedAt:      uc.Clock.now().UTC(),
	}
	if err := uc.Certs.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
