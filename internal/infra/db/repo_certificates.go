package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bloodlink/internal/domain"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) Insert(ctx context.Context, rec domain.CertificateRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if rec.ID == "" {
		return errors.New("certificate id is required")
	}
	if rec.DonorID == "" {
		return errors.New("donor_id is required")
	}
	if rec.FileRef == "" {
		return errors.New("file_ref is required")
	}
	if rec.ClaimedAddress == "" {
		return errors.New("claimed_address is required")
	}

	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	model := CertificateModel{
		ID:             rec.ID,
		DonorID:        rec.DonorID,
		FileRef:        rec.FileRef,
		ClaimedAddress: rec.ClaimedAddress,
		FileName:       rec.FileName,
		MediaType:      rec.MediaType,
		ContentHash:    stringPtrIfNotEmpty(rec.ContentHash),
		Eligible:       eligibleFlag(rec.Eligibility),
		LedgerTxRef:    stringPtrIfNotEmpty(rec.LedgerTxRef),
		ReviewerID:     stringPtrIfNotEmpty(rec.ReviewerID),
		Notes:          stringPtrIfNotEmpty(rec.Notes),
		CreatedAt:      createdAt,
		DecidedAt:      rec.DecidedAt,
		UpdatedAt:      now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*domain.CertificateRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if id == "" {
		return nil, errors.New("certificate id is required")
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	rec := certificateFromModel(model)
	return &rec, nil
}

func (r *CertificateRepository) UpdateDecision(ctx context.Context, id string, upd domain.DecisionUpdate) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if id == "" {
		return errors.New("certificate id is required")
	}
	if !upd.Eligibility.Decided() {
		return errors.New("decision eligibility is required")
	}
	if upd.ContentHash == "" || upd.LedgerTxRef == "" {
		return errors.New("decision requires content hash and ledger tx ref")
	}

	decidedAt := upd.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	updates := map[string]any{
		"content_hash":  upd.ContentHash,
		"eligible":      upd.Eligibility == domain.EligibilityEligible,
		"ledger_tx_ref": upd.LedgerTxRef,
		"reviewer_id":   stringPtrIfNotEmpty(upd.ReviewerID),
		"notes":         stringPtrIfNotEmpty(upd.Notes),
		"decided_at":    decidedAt,
		"updated_at":    time.Now().UTC(),
	}
	result := r.db.WithContext(ctx).Model(&CertificateModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CertificateRepository) ListPending(ctx context.Context) ([]domain.CertificateRecord, error) {
	return r.list(ctx, "eligible IS NULL")
}

func (r *CertificateRepository) ListDecided(ctx context.Context) ([]domain.CertificateRecord, error) {
	return r.list(ctx, "eligible IS NOT NULL")
}

func (r *CertificateRepository) list(ctx context.Context, condition string) ([]domain.CertificateRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CertificateModel
	if err := r.db.WithContext(ctx).
		Where(condition).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	out := make([]domain.CertificateRecord, 0, len(models))
	for _, model := range models {
		out = append(out, certificateFromModel(model))
	}
	return out, nil
}

func certificateFromModel(model CertificateModel) domain.CertificateRecord {
	return domain.CertificateRecord{
		ID:             model.ID,
		DonorID:        model.DonorID,
		FileRef:        model.FileRef,
		ClaimedAddress: model.ClaimedAddress,
		FileName:       model.FileName,
		MediaType:      model.MediaType,
		ContentHash:    stringValue(model.ContentHash),
		Eligibility:    eligibilityFromFlag(model.Eligible),
		LedgerTxRef:    stringValue(model.LedgerTxRef),
		ReviewerID:     stringValue(model.ReviewerID),
		Notes:          stringValue(model.Notes),
		CreatedAt:      model.CreatedAt,
		DecidedAt:      model.DecidedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func eligibleFlag(e domain.Eligibility) *bool {
	switch e {
	case domain.EligibilityEligible:
		v := true
		return &v
	case domain.EligibilityIneligible:
		v := false
		return &v
	default:
		return nil
	}
}

func eligibilityFromFlag(flag *bool) domain.Eligibility {
	if flag == nil {
		return domain.EligibilityUnset
	}
	if *flag {
		return domain.EligibilityEligible
	}
	return domain.EligibilityIneligible
}

func stringPtrIfNotEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
