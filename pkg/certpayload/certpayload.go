// Package certpayload encodes and decodes the NOSKID KEY block carried in a
// certificate PNG's text metadata.
package certpayload

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"

	"noskid/pkg/pngtext"
)

const (
	// Keyword is the tEXt keyword the payload is stored under.
	Keyword     = "noskid-key"
	BeginMarker = "-----BEGIN NOSKID KEY-----"
	EndMarker   = "-----END NOSKID KEY-----"
)

var (
	keyPattern   = regexp.MustCompile(`(?i)-*BEGIN NOSKID KEY-*\s*([a-f0-9]{64})(?:[^a-f0-9]|$)`)
	blockPattern = regexp.MustCompile(`-----BEGIN NOSKID KEY-----\s*([a-fA-F0-9]+)\s*([A-Za-z0-9+/=]+)\s*([A-Za-z0-9+/=]+)\s*-----END NOSKID KEY-----`)
	certPattern  = regexp.MustCompile(`CERT-\d+-(.+)`)
	datePattern  = regexp.MustCompile(`CREATED-(.+)`)
	digits       = regexp.MustCompile(`^\d+$`)
)

var ErrInvalidPayload = errors.New("invalid certificate payload")

// Payload is what the issuer writes into a certificate.
type Payload struct {
	Key       string
	Number    string
	Username  string
	CreatedAt string
}

// LocalClaim is the advisory identity read back from a certificate.
type LocalClaim struct {
	Username     string
	CreationDate string
}

func Encode(p Payload) (string, error) {
	key := strings.ToLower(strings.TrimSpace(p.Key))
	if len(key) != 64 || !isHex(key) {
		return "", ErrInvalidPayload
	}
	if !digits.MatchString(p.Number) || p.Username == "" || strings.ContainsAny(p.Username, "\r\n") {
		return "", ErrInvalidPayload
	}
	if p.CreatedAt == "" || strings.ContainsAny(p.CreatedAt, "\r\n") {
		return "", ErrInvalidPayload
	}
	var b strings.Builder
	b.WriteString(BeginMarker)
	b.WriteByte('\n')
	b.WriteString(key)
	b.WriteByte('\n')
	b.WriteString(base64.StdEncoding.EncodeToString([]byte("CERT-" + p.Number + "-" + p.Username)))
	b.WriteByte('\n')
	b.WriteString(base64.StdEncoding.EncodeToString([]byte("CREATED-" + p.CreatedAt)))
	b.WriteByte('\n')
	b.WriteString(EndMarker)
	return b.String(), nil
}

// ExtractKey finds the verification key after the BEGIN marker. Matching is
// case-insensitive and the key is returned lowercased.
func ExtractKey(text string) (string, bool) {
	m := keyPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// DecodeClaim recovers the username and creation date. Any malformed part
// yields ok=false; local data is never required for verification.
func DecodeClaim(text string) (LocalClaim, bool) {
	m := blockPattern.FindStringSubmatch(text)
	if m == nil {
		return LocalClaim{}, false
	}
	cert, ok := decodeSegment(m[2])
	if !ok {
		return LocalClaim{}, false
	}
	um := certPattern.FindStringSubmatch(cert)
	if um == nil {
		return LocalClaim{}, false
	}
	created, ok := decodeSegment(m[3])
	if !ok {
		return LocalClaim{}, false
	}
	dm := datePattern.FindStringSubmatch(created)
	if dm == nil {
		return LocalClaim{}, false
	}
	return LocalClaim{Username: um[1], CreationDate: dm[1]}, true
}

// FromPNG reads the payload text out of a certificate image.
func FromPNG(data []byte) (string, bool, error) {
	return pngtext.Find(data, Keyword)
}

// EmbedPNG writes an encoded payload into a certificate image.
func EmbedPNG(data []byte, p Payload) ([]byte, error) {
	text, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return pngtext.Embed(data, Keyword, text)
}

// Padding is optional on read.
func decodeSegment(s string) (string, bool) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
