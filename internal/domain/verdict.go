package domain

import (
	"fmt"
	"strings"
)

type VerdictStatus string

const (
	VerdictValid        VerdictStatus = "valid"
	VerdictInvalid      VerdictStatus = "invalid"
	VerdictInconclusive VerdictStatus = "inconclusive"
)

// Verdict is the single outcome of one verification attempt. Cause is one of
// the package sentinels (or wraps one) and is meant for logs and telemetry,
// not for end users.
type Verdict struct {
	Status    VerdictStatus
	Reason    string
	Record    *AuthorityRecord
	Key       VerificationKey
	Cached    bool
	Strict    bool
	AttemptID string
	Cause     error
}

func Valid(record AuthorityRecord) Verdict {
	return Verdict{Status: VerdictValid, Reason: "Certificate verified successfully", Record: &record}
}

func Invalid(reason string, cause error) Verdict {
	return Verdict{Status: VerdictInvalid, Reason: reason, Cause: cause}
}

// Inconclusive keeps transport details in Cause only; reason is shown to
// end users.
func Inconclusive(reason string, cause error) Verdict {
	if reason == "" {
		reason = "Verification service unavailable"
	}
	return Verdict{Status: VerdictInconclusive, Reason: reason, Cause: cause}
}

func (v Verdict) IsValid() bool {
	return v.Status == VerdictValid
}

// FormattedDetails renders the certificate summary shown to operators.
func (v Verdict) FormattedDetails(useLegacyField bool) string {
	if v.Record == nil {
		return "No certificate data available"
	}
	r := v.Record
	var b strings.Builder
	b.WriteString("Certificate Details:\n")
	fmt.Fprintf(&b, "- Certificate #: %s\n", r.CertificateNumber)
	fmt.Fprintf(&b, "- Username: %s\n", r.DisplayName(useLegacyField))
	fmt.Fprintf(&b, "- Percentage: %s%%\n", formatPercentage(r.Percentage))
	fmt.Fprintf(&b, "- Creation Date: %s\n", r.CreationDate)
	fmt.Fprintf(&b, "- Country: %s (%s)", r.Country, r.CountryCode)
	return b.String()
}

func formatPercentage(p Percentage) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", float64(p)), "0"), ".")
}
