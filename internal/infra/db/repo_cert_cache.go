package db

import (
	"context"
	"errors"
	"time"

	"noskid/internal/domain"
	"noskid/internal/usecase"

	"gorm.io/gorm"
)

type CertCacheRepository struct {
	db *gorm.DB
}

var _ usecase.CertCacheRepository = (*CertCacheRepository)(nil)

func NewCertCacheRepository(db *gorm.DB) *CertCacheRepository {
	return &CertCacheRepository{db: db}
}

func (r *CertCacheRepository) GetFresh(ctx context.Context, key domain.VerificationKey, invalidSince time.Time) (*domain.CacheEntry, error) {
	if r == nil || r.db == nil {
		return nil, errDBUnavailable
	}
	var model CertCacheModel
	err := r.db.WithContext(ctx).
		Where("verification_key = ? AND (is_valid OR cached_at > ?)", key.String(), invalidSince.UTC()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	entry := toEntry(model)
	return &entry, nil
}

// UpsertValid refreshes the holder fields and validity. Issuance facts are
// only filled in when the existing row has none.
func (r *CertCacheRepository) UpsertValid(ctx context.Context, key domain.VerificationKey, record domain.AuthorityRecord, cachedAt time.Time) error {
	if r == nil || r.db == nil {
		return errDBUnavailable
	}
	pct := float64(record.Percentage)
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO cert_cache (verification_key, is_valid, certificate_number, username, nickname,
			percentage, boosted, creation_date, country, country_code, cached_at)
		 VALUES (?, TRUE, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (verification_key) DO UPDATE SET
			is_valid = TRUE,
			username = EXCLUDED.username,
			nickname = EXCLUDED.nickname,
			boosted = EXCLUDED.boosted,
			cached_at = EXCLUDED.cached_at,
			certificate_number = COALESCE(cert_cache.certificate_number, EXCLUDED.certificate_number),
			percentage = COALESCE(cert_cache.percentage, EXCLUDED.percentage),
			creation_date = COALESCE(cert_cache.creation_date, EXCLUDED.creation_date),
			country = COALESCE(cert_cache.country, EXCLUDED.country),
			country_code = COALESCE(cert_cache.country_code, EXCLUDED.country_code)`,
		key.String(),
		stringPtr(record.CertificateNumber.String()),
		stringPtr(record.Username),
		stringPtr(record.Nickname),
		&pct,
		record.Boosted,
		stringPtr(record.CreationDate),
		stringPtr(record.Country),
		stringPtr(record.CountryCode),
		cachedAt.UTC(),
	).Error
}

// UpsertInvalid marks key invalid as of cachedAt and keeps any issuance facts
// already stored.
func (r *CertCacheRepository) UpsertInvalid(ctx context.Context, key domain.VerificationKey, cachedAt time.Time) error {
	if r == nil || r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO cert_cache (verification_key, is_valid, boosted, cached_at)
		 VALUES (?, FALSE, FALSE, ?)
		 ON CONFLICT (verification_key) DO UPDATE SET
			is_valid = FALSE,
			cached_at = EXCLUDED.cached_at`,
		key.String(),
		cachedAt.UTC(),
	).Error
}

func toEntry(m CertCacheModel) domain.CacheEntry {
	entry := domain.CacheEntry{
		Key:      domain.VerificationKey(m.VerificationKey),
		IsValid:  m.IsValid,
		CachedAt: m.CachedAt,
	}
	if !m.IsValid {
		return entry
	}
	rec := domain.AuthorityRecord{
		CertificateNumber: domain.FlexString(derefString(m.CertificateNumber)),
		Username:          derefString(m.Username),
		Nickname:          derefString(m.Nickname),
		Boosted:           m.Boosted,
		CreationDate:      derefString(m.CreationDate),
		Country:           derefString(m.Country),
		CountryCode:       derefString(m.CountryCode),
	}
	if m.Percentage != nil {
		rec.Percentage = domain.Percentage(*m.Percentage)
	}
	entry.Record = &rec
	return entry
}
