package db

import "time"

// CertCacheModel is one cached authority verdict. Issuance facts are null on
// rows that have only ever been invalid.
type CertCacheModel struct {
	VerificationKey   string    `gorm:"column:verification_key;type:char(64);primaryKey"`
	IsValid           bool      `gorm:"column:is_valid;not null;default:false"`
	CertificateNumber *string   `gorm:"column:certificate_number"`
	Username          *string   `gorm:"column:username"`
	Nickname          *string   `gorm:"column:nickname"`
	Percentage        *float64  `gorm:"column:percentage;type:numeric(5,2)"`
	Boosted           bool      `gorm:"column:boosted;not null;default:false"`
	CreationDate      *string   `gorm:"column:creation_date"`
	Country           *string   `gorm:"column:country"`
	CountryCode       *string   `gorm:"column:country_code;type:varchar(8)"`
	CachedAt          time.Time `gorm:"column:cached_at;index;not null"`
}

func (CertCacheModel) TableName() string {
	return "cert_cache"
}
