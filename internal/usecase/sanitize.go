package usecase

import "strings"

// SanitizeUsername derives the stored handle: the first word of the original
// name restricted to [A-Za-z0-9_], followed by the certificate number.
func SanitizeUsername(original, certificateNumber string) string {
	fields := strings.Fields(original)
	var b strings.Builder
	if len(fields) > 0 {
		for _, r := range fields[0] {
			if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
	}
	b.WriteString(certificateNumber)
	return b.String()
}
