package usecase

import (
	"fmt"

	"noskid/internal/domain"
	"noskid/pkg/certpayload"
)

// Timestamps are compared at minute precision so clock drift between issuer
// and authority cannot fail a check.
const datePrefixLen = 16

type CheckResult struct {
	OK     bool
	Reason string
}

// CompareClaim reconciles a certificate's embedded claim with the authority's
// record. With strict off it always passes. The first mismatch wins.
func CompareClaim(local certpayload.LocalClaim, remote domain.AuthorityRecord, strict, useLegacyField bool) CheckResult {
	if !strict {
		return CheckResult{OK: true}
	}
	remoteName := remote.DisplayName(useLegacyField)
	if local.Username != remoteName {
		return CheckResult{Reason: fmt.Sprintf("Username mismatch: local=%s remote=%s", local.Username, remoteName)}
	}
	localDate := truncate(local.CreationDate, datePrefixLen)
	remoteDate := truncate(remote.CreationDate, datePrefixLen)
	if localDate != remoteDate {
		return CheckResult{Reason: fmt.Sprintf("Creation date mismatch: local=%s remote=%s", localDate, remoteDate)}
	}
	return CheckResult{OK: true}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
