package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"noskid/internal/domain"

	"github.com/sirupsen/logrus"
)

const DefaultInvalidTTL = 24 * time.Hour

const (
	msgMissingKey      = "Missing verification key parameter"
	msgInvalidKey      = "Invalid verification key format"
	msgValid           = "Certificate is valid and verified"
	msgInvalid         = "Certificate not found or invalid verification key"
	msgUnavailable     = "API unavailable"
	msgInvalidResponse = "Invalid response from verification service"
)

// LookupPath says which branch produced a lookup response.
type LookupPath string

const (
	PathLocal LookupPath = "local"
	PathCache LookupPath = "cache"
	PathFresh LookupPath = "fresh"
)

// LookupResult is the JSON body to emit plus the verdict it encodes.
type LookupResult struct {
	Body    map[string]any
	Verdict domain.Verdict
	Path    LookupPath
}

// LookupCertificate is the cache in front of the ground-truth authority.
// Valid entries are served forever, invalid ones for InvalidTTL. Transport
// failures are never written to the cache.
type LookupCertificate struct {
	Cache    CertCacheRepository
	Upstream Authority
	Logger   *logrus.Logger
	Now      func() time.Time

	InvalidTTL time.Duration
	// RejectMalformed answers malformed keys locally instead of forwarding
	// them to the authority.
	RejectMalformed bool
}

func (uc *LookupCertificate) Execute(ctx context.Context, rawKey string) LookupResult {
	log := loggerOrDiscard(uc.Logger)
	trimmed := strings.TrimSpace(rawKey)
	if trimmed == "" {
		return LookupResult{
			Body:    map[string]any{"success": false, "message": msgMissingKey, "cached": false},
			Verdict: domain.Invalid(msgMissingKey, domain.ErrInvalidKey),
			Path:    PathLocal,
		}
	}

	key, err := domain.ParseKey(trimmed)
	if err != nil {
		if uc.RejectMalformed {
			return LookupResult{
				Body:    map[string]any{"success": false, "message": msgInvalidKey, "cached": false},
				Verdict: domain.Invalid(msgInvalidKey, err),
				Path:    PathLocal,
			}
		}
		// Malformed keys cannot be stored; the authority gets to reject them.
		return uc.fetch(ctx, domain.VerificationKey(trimmed), false, log)
	}

	if res, ok := uc.fromCache(ctx, key, log); ok {
		return res
	}
	return uc.fetch(ctx, key, true, log)
}

func (uc *LookupCertificate) fromCache(ctx context.Context, key domain.VerificationKey, log *logrus.Logger) (LookupResult, bool) {
	if uc.Cache == nil {
		return LookupResult{}, false
	}
	now := uc.now()
	ttl := uc.invalidTTL()
	entry, err := uc.Cache.GetFresh(ctx, key, now.Add(-ttl))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.WithError(err).WithField("key_prefix", key.Prefix()).Warn("cert cache read failed; treating as miss")
		}
		return LookupResult{}, false
	}
	if entry == nil || !entry.Fresh(now, ttl) {
		return LookupResult{}, false
	}
	log.WithFields(logrus.Fields{"key_prefix": key.Prefix(), "path": PathCache, "outcome": validity(entry.IsValid)}).Debug("served from cache")

	if entry.IsValid && entry.Record != nil {
		v := domain.Valid(*entry.Record)
		v.Key, v.Cached = key, true
		return LookupResult{
			Body: map[string]any{
				"success": true,
				"message": msgValid,
				"data":    recordBody(*entry.Record),
				"cached":  true,
			},
			Verdict: v,
			Path:    PathCache,
		}, true
	}
	if entry.IsValid {
		return LookupResult{}, false
	}
	v := domain.Invalid(msgInvalid, domain.ErrAuthorityRejected)
	v.Key, v.Cached = key, true
	return LookupResult{
		Body:    map[string]any{"success": false, "message": msgInvalid, "cached": true},
		Verdict: v,
		Path:    PathCache,
	}, true
}

func (uc *LookupCertificate) fetch(ctx context.Context, key domain.VerificationKey, cacheable bool, log *logrus.Logger) LookupResult {
	if uc.Upstream == nil {
		return unavailable(&domain.TransportError{Err: errors.New("no upstream authority configured")})
	}
	answer, err := uc.Upstream.Check(ctx, key)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"event": "authority_unreachable", "path": PathFresh}).Warn("upstream authority call failed")
		return unavailable(err)
	}
	if answer.Success && answer.Record == nil {
		return unavailable(domain.ErrMalformedResponse)
	}

	now := uc.now()
	if answer.Success {
		record := *answer.Record
		original := record.OriginalName()
		record.Nickname = original
		record.Username = SanitizeUsername(original, record.CertificateNumber.String())

		if cacheable && uc.Cache != nil {
			if err := uc.Cache.UpsertValid(ctx, key, record, now); err != nil {
				log.WithError(err).Warn("cert cache write failed")
			}
		}
		body := cloneBody(answer.Body)
		data, _ := body["data"].(map[string]any)
		data = cloneBody(data)
		if len(data) == 0 {
			data = recordBody(record)
		}
		data["username"] = record.Username
		data["nickname"] = record.Nickname
		body["success"] = true
		body["data"] = data
		body["cached"] = false

		v := domain.Valid(record)
		v.Key = key
		log.WithFields(logrus.Fields{"path": PathFresh, "outcome": domain.VerdictValid}).Info("certificate verified by authority")
		return LookupResult{Body: body, Verdict: v, Path: PathFresh}
	}

	if cacheable && uc.Cache != nil {
		if err := uc.Cache.UpsertInvalid(ctx, key, now); err != nil {
			log.WithError(err).Warn("cert cache write failed")
		}
	}
	body := cloneBody(answer.Body)
	if _, ok := body["success"]; !ok {
		body["success"] = false
	}
	if _, ok := body["message"]; !ok {
		body["message"] = msgInvalid
	}
	body["cached"] = false
	message := answer.Message
	if message == "" {
		message = msgInvalid
	}
	v := domain.Invalid(message, domain.ErrAuthorityRejected)
	v.Key = key
	log.WithFields(logrus.Fields{"path": PathFresh, "event": "authority_rejected"}).Info("certificate rejected by authority")
	return LookupResult{Body: body, Verdict: v, Path: PathFresh}
}

func unavailable(err error) LookupResult {
	if errors.Is(err, domain.ErrMalformedResponse) {
		return LookupResult{
			Body:    map[string]any{"success": false, "message": msgInvalidResponse, "cached": false},
			Verdict: domain.Inconclusive(msgInvalidResponse, err),
			Path:    PathFresh,
		}
	}
	body := map[string]any{
		"success":     false,
		"message":     msgUnavailable,
		"status_code": nil,
		"error":       err.Error(),
		"cached":      false,
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		if te.StatusCode != 0 {
			body["status_code"] = te.StatusCode
		}
		if te.Err != nil {
			body["error"] = te.Err.Error()
		}
	}
	return LookupResult{Body: body, Verdict: domain.Inconclusive(msgUnavailable, err), Path: PathFresh}
}

func recordBody(r domain.AuthorityRecord) map[string]any {
	return map[string]any{
		"certificate_number": r.CertificateNumber.String(),
		"username":           r.Username,
		"nickname":           r.Nickname,
		"percentage":         float64(r.Percentage),
		"boosted":            r.Boosted,
		"creationDate":       r.CreationDate,
		"country":            r.Country,
		"countryCode":        r.CountryCode,
	}
}

func cloneBody(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func validity(valid bool) domain.VerdictStatus {
	if valid {
		return domain.VerdictValid
	}
	return domain.VerdictInvalid
}

func (uc *LookupCertificate) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

func (uc *LookupCertificate) invalidTTL() time.Duration {
	if uc.InvalidTTL > 0 {
		return uc.InvalidTTL
	}
	return DefaultInvalidTTL
}

// LookupAuthority lets the verification client run against this cache
// directly, for deployments where the client is on the authority side.
type LookupAuthority struct {
	Lookup *LookupCertificate
}

func (a LookupAuthority) Check(ctx context.Context, key domain.VerificationKey) (AuthorityAnswer, error) {
	res := a.Lookup.Execute(ctx, key.String())
	switch res.Verdict.Status {
	case domain.VerdictInconclusive:
		if res.Verdict.Cause != nil {
			return AuthorityAnswer{}, res.Verdict.Cause
		}
		return AuthorityAnswer{}, domain.ErrTransport
	case domain.VerdictValid:
		return AuthorityAnswer{
			Success: true,
			Message: msgValid,
			Record:  res.Verdict.Record,
			Cached:  res.Path == PathCache,
			Body:    res.Body,
		}, nil
	default:
		return AuthorityAnswer{
			Success: false,
			Message: res.Verdict.Reason,
			Cached:  res.Path == PathCache,
			Body:    res.Body,
		}, nil
	}
}
