package http

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"noskid/internal/domain"
	"noskid/internal/usecase"

	"github.com/gin-gonic/gin"
)

const maxCertificateBytes = 10 << 20

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type verifyRequest struct {
	Key               string `json:"key"`
	Strict            *bool  `json:"strict"`
	AllowAchievements *bool  `json:"allowAchievements"`
	UseLegacyField    bool   `json:"useLegacyField"`
}

type verifyResponse struct {
	Valid       bool           `json:"valid"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Cached      bool           `json:"cached"`
	StrictCheck bool           `json:"strictCheck"`
	Query       string         `json:"query,omitempty"`
	AttemptID   string         `json:"attempt_id"`
}

// handleCheckCert serves the cache contract. Every outcome, including a
// missing key and an unreachable authority, is HTTP 200 with a JSON body.
func (s *Server) handleCheckCert(c *gin.Context) {
	if s.lookupUC == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "cert cache not initialized")
		return
	}
	res := s.lookupUC.Execute(c.Request.Context(), c.Query("key"))
	c.IndentedJSON(http.StatusOK, res.Body)
}

func (s *Server) handleVerify(c *gin.Context) {
	if s.verifyUC == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "verifier not initialized")
		return
	}
	opts := usecase.DefaultVerifyOptions()
	var verdict domain.Verdict

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch {
	case mediaType == "image/png" || mediaType == "application/octet-stream":
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCertificateBytes+1))
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "could not read certificate")
			return
		}
		if len(data) > maxCertificateBytes {
			writeErrorCode(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", "certificate exceeds 10MB")
			return
		}
		applyQueryOptions(c, &opts)
		verdict = s.verifyUC.VerifyFromFile(c.Request.Context(), data, opts)
	default:
		var req verifyRequest
		if err := json.NewDecoder(io.LimitReader(c.Request.Body, 64<<10)).Decode(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
			return
		}
		if req.Strict != nil {
			opts.Strict = *req.Strict
		}
		if req.AllowAchievements != nil {
			opts.AllowBoosted = *req.AllowAchievements
		}
		opts.UseLegacyField = req.UseLegacyField
		verdict = s.verifyUC.VerifyWithKey(c.Request.Context(), req.Key, opts)
	}

	status := http.StatusOK
	if verdict.Status == domain.VerdictInconclusive {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, toVerifyResponse(verdict, opts))
}

func applyQueryOptions(c *gin.Context, opts *usecase.VerifyOptions) {
	if v, ok := c.GetQuery("strict"); ok {
		opts.Strict = parseBool(v, opts.Strict)
	}
	if v, ok := c.GetQuery("allowAchievements"); ok {
		opts.AllowBoosted = parseBool(v, opts.AllowBoosted)
	}
	if v, ok := c.GetQuery("useLegacyField"); ok {
		opts.UseLegacyField = parseBool(v, opts.UseLegacyField)
	}
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

func toVerifyResponse(v domain.Verdict, opts usecase.VerifyOptions) verifyResponse {
	resp := verifyResponse{
		Valid:       v.IsValid(),
		Message:     v.Reason,
		Cached:      v.Cached,
		StrictCheck: opts.Strict,
		Query:       v.Key.String(),
		AttemptID:   v.AttemptID,
	}
	if v.Record != nil {
		r := v.Record
		resp.Data = map[string]any{
			"certificate_number": r.CertificateNumber.String(),
			"username":           r.DisplayName(opts.UseLegacyField),
			"nickname":           r.Nickname,
			"percentage":         float64(r.Percentage),
			"boosted":            r.Boosted,
			"creationDate":       r.CreationDate,
			"country":            r.Country,
			"countryCode":        r.CountryCode,
		}
	}
	return resp
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
