package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"noskid/internal/domain"

	"github.com/fatih/color"
)

var (
	validColor        = color.New(color.FgGreen, color.Bold)
	invalidColor      = color.New(color.FgRed, color.Bold)
	inconclusiveColor = color.New(color.FgYellow, color.Bold)
)

type verifyOutput struct {
	Valid       bool           `json:"valid"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Cached      bool           `json:"cached"`
	StrictCheck bool           `json:"strictCheck"`
	Query       string         `json:"query,omitempty"`
}

func writeOutput(path string, payload []byte) error {
	if path == "" {
		if _, err := stdout.Write(payload); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func printVerdict(w io.Writer, v domain.Verdict, useLegacy bool) {
	switch v.Status {
	case domain.VerdictValid:
		validColor.Fprint(w, "VALID")
	case domain.VerdictInvalid:
		invalidColor.Fprint(w, "INVALID")
	default:
		inconclusiveColor.Fprint(w, "INCONCLUSIVE")
	}
	fmt.Fprintf(w, "  %s", v.Reason)
	if v.Cached {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)
	if v.Record != nil {
		fmt.Fprintln(w, v.FormattedDetails(useLegacy))
	}
}

func printVerdictJSON(w io.Writer, v domain.Verdict, useLegacy bool) error {
	out := verifyOutput{
		Valid:       v.IsValid(),
		Status:      string(v.Status),
		Message:     v.Reason,
		Cached:      v.Cached,
		StrictCheck: v.Strict,
		Query:       v.Key.String(),
	}
	if v.Record != nil {
		r := v.Record
		out.Data = map[string]any{
			"certificate_number": r.CertificateNumber.String(),
			"username":           r.DisplayName(useLegacy),
			"nickname":           r.Nickname,
			"percentage":         float64(r.Percentage),
			"boosted":            r.Boosted,
			"creationDate":       r.CreationDate,
			"country":            r.Country,
			"countryCode":        r.CountryCode,
		}
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func exitCode(v domain.Verdict) int {
	switch v.Status {
	case domain.VerdictValid:
		return exitValid
	case domain.VerdictInvalid:
		return exitInvalid
	default:
		return exitInconclusive
	}
}
