package db

import "time"

type CertificateModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	DonorID        string `gorm:"index;not null"`
	FileRef        string `gorm:"not null"`
	ClaimedAddress string `gorm:"index;not null"`
	FileName       string
	MediaType      string
	ContentHash    *string `gorm:"index"`
	Eligible       *bool   `gorm:"index"`
	LedgerTxRef    *string
	ReviewerID     *string
	Notes          *string
	CreatedAt      time.Time `gorm:"not null"`
	DecidedAt      *time.Time
	UpdatedAt      time.Time `gorm:"not null"`
}

func (CertificateModel) TableName() string {
	return "certificates"
}
