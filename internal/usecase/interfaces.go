package usecase

import (
	"context"
	"time"

	"noskid/internal/domain"
)

// AuthorityAnswer is a decoded authority or cache-server response. Body keeps
// the raw JSON object so it can be re-emitted with only the documented edits.
type AuthorityAnswer struct {
	Success bool
	Message string
	Record  *domain.AuthorityRecord
	Cached  bool
	Body    map[string]any
}

// Authority answers for a certificate key. A returned error always means no
// trustworthy answer was obtained and wraps domain.ErrTransport or
// domain.ErrMalformedResponse.
type Authority interface {
	Check(ctx context.Context, key domain.VerificationKey) (AuthorityAnswer, error)
}

// CertCacheRepository stores one entry per key, last writer wins.
type CertCacheRepository interface {
	// GetFresh returns the entry for key when it is valid, or invalid and
	// cached after invalidSince. Anything else is domain.ErrNotFound.
	GetFresh(ctx context.Context, key domain.VerificationKey, invalidSince time.Time) (*domain.CacheEntry, error)
	UpsertValid(ctx context.Context, key domain.VerificationKey, record domain.AuthorityRecord, cachedAt time.Time) error
	UpsertInvalid(ctx context.Context, key domain.VerificationKey, cachedAt time.Time) error
}

type AcceptanceInput struct {
	Key    string                 `json:"key"`
	Record domain.AuthorityRecord `json:"certificate"`
	Cached bool                   `json:"cached"`
}

type PolicyViolation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AcceptanceDecision struct {
	Allow bool              `json:"allow"`
	Deny  []PolicyViolation `json:"deny"`
}

// AcceptancePolicy is an optional caller rule applied to certificates the
// authority already vouched for.
type AcceptancePolicy interface {
	Evaluate(ctx context.Context, input AcceptanceInput) (AcceptanceDecision, error)
}
