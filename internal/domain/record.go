package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AuthorityRecord is the ground-truth certificate as reported by the
// issuing authority or the verification cache.
type AuthorityRecord struct {
	CertificateNumber FlexString `json:"certificate_number"`
	Username          string     `json:"username"`
	Nickname          string     `json:"nickname,omitempty"`
	Percentage        Percentage `json:"percentage"`
	Boosted           bool       `json:"boosted"`
	CreationDate      string     `json:"creationDate"`
	Country           string     `json:"country"`
	CountryCode       string     `json:"countryCode"`
}

// DisplayName is the name to compare against a certificate's local claim.
// Legacy responses carry no nickname, so username is used instead.
func (r AuthorityRecord) DisplayName(useLegacyField bool) string {
	if !useLegacyField && r.Nickname != "" {
		return r.Nickname
	}
	return r.Username
}

// OriginalName is the unsanitized holder name.
func (r AuthorityRecord) OriginalName() string {
	if r.Nickname != "" {
		return r.Nickname
	}
	return r.Username
}

// CacheEntry is one stored verdict per key.
type CacheEntry struct {
	Key      VerificationKey
	IsValid  bool
	Record   *AuthorityRecord
	CachedAt time.Time
}

// Fresh reports whether the entry may be served at now. Valid entries never
// expire; invalid ones are served until invalidTTL has passed.
func (e CacheEntry) Fresh(now time.Time, invalidTTL time.Duration) bool {
	if e.IsValid {
		return true
	}
	return e.CachedAt.After(now.Add(-invalidTTL))
}

// FlexString accepts both JSON strings and numbers.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) String() string {
	return string(s)
}

// Percentage accepts both JSON numbers and numeric strings, since cached rows
// come back from SQL as text in older deployments.
type Percentage float64

func (p *Percentage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if str == "" {
			*p = 0
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("percentage: %w", err)
		}
		*p = Percentage(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("percentage: %w", err)
	}
	*p = Percentage(v)
	return nil
}

// MergeValid applies a positive authority answer on top of prev. Holder
// fields are refreshed; issuance facts already stored win over new ones.
func MergeValid(prev *CacheEntry, key VerificationKey, record AuthorityRecord, cachedAt time.Time) CacheEntry {
	merged := record
	if prev != nil && prev.Record != nil {
		old := prev.Record
		if old.CertificateNumber != "" {
			merged.CertificateNumber = old.CertificateNumber
		}
		// Every valid write stores a percentage, so 0 is a real value here.
		merged.Percentage = old.Percentage
		if old.CreationDate != "" {
			merged.CreationDate = old.CreationDate
		}
		if old.Country != "" {
			merged.Country = old.Country
		}
		if old.CountryCode != "" {
			merged.CountryCode = old.CountryCode
		}
	}
	return CacheEntry{Key: key, IsValid: true, Record: &merged, CachedAt: cachedAt}
}

// MergeInvalid marks a key invalid as of cachedAt, keeping stored facts.
func MergeInvalid(prev *CacheEntry, key VerificationKey, cachedAt time.Time) CacheEntry {
	entry := CacheEntry{Key: key, CachedAt: cachedAt}
	if prev != nil && prev.Record != nil {
		rec := *prev.Record
		entry.Record = &rec
	}
	return entry
}
