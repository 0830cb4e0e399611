package checkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"noskid/internal/domain"
	"noskid/internal/usecase"
)

const (
	DefaultBaseURL   = "https://noskid.today/api/checkcert/"
	DefaultUserAgent = "check.noskid.today/5.0"
	DefaultTimeout   = 10 * time.Second

	maxResponseBytes = 1 << 20

	invalidResponseMessage = "Invalid response from verification service"
)

type Options struct {
	UserAgent string
	Timeout   time.Duration
	// LoginURL is optional; Login fails with an error when it is empty.
	LoginURL string
}

// Client talks to a certificate checking endpoint: the issuing authority
// itself or a cache server exposing the same contract.
type Client struct {
	baseURL   string
	loginURL  string
	userAgent string
	timeout   time.Duration
	httpDo    func(*http.Request) (*http.Response, error)
}

var _ usecase.Authority = (*Client)(nil)

func NewClient(baseURL string, opts Options, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("checkapi base url: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL:   baseURL,
		loginURL:  strings.TrimSpace(opts.LoginURL),
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		httpDo:    doer,
	}, nil
}

type checkResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Cached  bool                    `json:"cached"`
	Data    *domain.AuthorityRecord `json:"data"`
}

// Check asks the endpoint about key. Non-2xx statuses and network errors are
// transport failures; a 2xx body that is not a JSON object is malformed. A
// cache server reports its own upstream failures inside a 2xx body, and those
// map to the same errors.
func (c *Client) Check(ctx context.Context, key domain.VerificationKey) (usecase.AuthorityAnswer, error) {
	if c == nil {
		return usecase.AuthorityAnswer{}, &domain.TransportError{Err: errors.New("checkapi client not configured")}
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return usecase.AuthorityAnswer{}, &domain.TransportError{Err: err}
	}
	q := u.Query()
	q.Set("key", key.String())
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return usecase.AuthorityAnswer{}, &domain.TransportError{Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return usecase.AuthorityAnswer{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return usecase.AuthorityAnswer{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return usecase.AuthorityAnswer{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if !parsed.Success {
		if err := relayedFailure(raw, parsed.Message); err != nil {
			return usecase.AuthorityAnswer{}, err
		}
	}
	answer := usecase.AuthorityAnswer{
		Success: parsed.Success,
		Message: parsed.Message,
		Cached:  parsed.Cached,
		Body:    raw,
	}
	if parsed.Success {
		answer.Record = parsed.Data
	}
	return answer, nil
}

type LoginCertificate struct {
	Key               string            `json:"key"`
	Username          string            `json:"username"`
	Nickname          string            `json:"nickname"`
	CertificateNumber domain.FlexString `json:"certificate_number"`
	Percentage        domain.Percentage `json:"percentage"`
	Country           string            `json:"country"`
	CountryCode       string            `json:"countryCode"`
	CreationDate      string            `json:"creationDate"`
}

type LoginRequest struct {
	Certificate LoginCertificate `json:"certificate"`
	Password    string           `json:"password"`
}

type LoginResult struct {
	Success bool
	Message string
	Body    map[string]any
}

// LoginCertificateFrom builds the login credential from a verified
// certificate. The local username is what the holder sees on the image.
func LoginCertificateFrom(key domain.VerificationKey, localUsername string, r domain.AuthorityRecord) LoginCertificate {
	return LoginCertificate{
		Key:               key.String(),
		Username:          localUsername,
		Nickname:          r.Nickname,
		CertificateNumber: r.CertificateNumber,
		Percentage:        r.Percentage,
		Country:           r.Country,
		CountryCode:       r.CountryCode,
		CreationDate:      r.CreationDate,
	}
}

// Login posts a verified certificate plus password to the relying site's
// login endpoint.
func (c *Client) Login(ctx context.Context, in LoginRequest) (LoginResult, error) {
	if c == nil || c.loginURL == "" {
		return LoginResult{}, errors.New("login endpoint is not configured")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return LoginResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(payload))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	body, err := c.do(req)
	if err != nil {
		return LoginResult{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return LoginResult{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	res := LoginResult{Body: raw}
	res.Success, _ = raw["success"].(bool)
	res.Message, _ = raw["message"].(string)
	if !res.Success && res.Message == "" {
		res.Message = "Login failed"
	}
	return res, nil
}

// relayedFailure recognises the failure bodies a cache server synthesizes
// instead of an answer: "API unavailable" carries status_code and error,
// a garbled upstream body carries the invalid response message.
func relayedFailure(raw map[string]any, message string) error {
	if message == invalidResponseMessage {
		return fmt.Errorf("%w: relayed by cache server", domain.ErrMalformedResponse)
	}
	_, hasStatus := raw["status_code"]
	_, hasError := raw["error"]
	if !hasStatus && !hasError {
		return nil
	}
	te := &domain.TransportError{Err: errors.New("upstream unavailable")}
	if code, ok := raw["status_code"].(float64); ok {
		te.StatusCode = int(code)
	}
	if cause, ok := raw["error"].(string); ok && cause != "" {
		te.Err = errors.New(cause)
	} else if message != "" {
		te.Err = errors.New(message)
	}
	return te
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, &domain.TransportError{Err: errorCause(req.Context(), err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: errorCause(req.Context(), err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
	return body, nil
}

func errorCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}
