package checkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"noskid/internal/domain"
)

const testKey = domain.VerificationKey("3f1c9a0b7d2e4f6a8b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f60718293a4b5c6")

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestCheckSuccess(t *testing.T) {
	var gotKey, gotUA string
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		gotKey = req.URL.Query().Get("key")
		gotUA = req.Header.Get("User-Agent")
		return jsonResponse(http.StatusOK, `{"success":true,"message":"Certificate is valid and verified","cached":true,
			"data":{"certificate_number":42,"username":"Alice42","nickname":"Alice","percentage":"87.5","boosted":false,
			"creationDate":"2024-01-01 10:00:00","country":"France","countryCode":"FR"}}`), nil
	})}

	client, err := NewClient("https://check.example/api/checkcert/", Options{}, httpClient)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	answer, err := client.Check(context.Background(), testKey)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if gotKey != testKey.String() {
		t.Fatalf("expected key query param, got %q", gotKey)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("expected default user agent, got %q", gotUA)
	}
	if !answer.Success || !answer.Cached || answer.Record == nil {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if answer.Record.CertificateNumber != "42" || answer.Record.Percentage != 87.5 || answer.Record.Nickname != "Alice" {
		t.Fatalf("unexpected record %+v", answer.Record)
	}
	if answer.Body["message"] != "Certificate is valid and verified" {
		t.Fatalf("expected raw body to be kept")
	}
}

func TestCheckRejection(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":false,"message":"Certificate not found or invalid verification key"}`), nil
	})}
	client, _ := NewClient("https://check.example/", Options{}, httpClient)

	answer, err := client.Check(context.Background(), testKey)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if answer.Success || answer.Record != nil || answer.Message == "" {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestCheckRelayedFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target error
		status int
	}{
		{"unavailable with status", `{"success":false,"message":"API unavailable","status_code":503,"error":"HTTP 503: Service Unavailable","cached":false}`, domain.ErrTransport, 503},
		{"unavailable without status", `{"success":false,"message":"API unavailable","status_code":null,"error":"connection refused","cached":false}`, domain.ErrTransport, 0},
		{"invalid upstream json", `{"success":false,"message":"Invalid response from verification service","cached":false}`, domain.ErrMalformedResponse, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, tt.body), nil
			})}
			client, _ := NewClient("https://check.example/", Options{}, httpClient)

			_, err := client.Check(context.Background(), testKey)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if errors.Is(err, domain.ErrAuthorityRejected) {
				t.Fatalf("relayed failure must not read as a rejection: %v", err)
			}
			var te *domain.TransportError
			if tt.target == domain.ErrTransport && (!errors.As(err, &te) || te.StatusCode != tt.status) {
				t.Fatalf("expected status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestCheckNon2xxIsTransportError(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `{"success":true}`), nil
	})}
	client, _ := NewClient("https://check.example/", Options{}, httpClient)

	_, err := client.Check(context.Background(), testKey)
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status code 502, got %v", err)
	}
}

func TestCheckNetworkErrorIsTransportError(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	client, _ := NewClient("https://check.example/", Options{}, httpClient)

	_, err := client.Check(context.Background(), testKey)
	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Fatalf("expected transport error without status, got %v", err)
	}
}

func TestCheckMalformedBody(t *testing.T) {
	for _, body := range []string{"<html>oops</html>", "null", "[1,2]"} {
		httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		})}
		client, _ := NewClient("https://check.example/", Options{}, httpClient)
		_, err := client.Check(context.Background(), testKey)
		if !errors.Is(err, domain.ErrMalformedResponse) {
			t.Fatalf("body %q: expected malformed response, got %v", body, err)
		}
	}
}

func TestCheckTimeout(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})}
	client, _ := NewClient("https://check.example/", Options{Timeout: 10 * time.Millisecond}, httpClient)

	_, err := client.Check(context.Background(), testKey)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected deadline transport error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	var got LoginRequest
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/login" {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			t.Fatalf("decode login body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"success":true,"message":"Welcome"}`), nil
	})}
	client, _ := NewClient("https://check.example/", Options{LoginURL: "https://site.example/login"}, httpClient)

	rec := domain.AuthorityRecord{CertificateNumber: "42", Nickname: "Alice", Country: "France", CountryCode: "FR"}
	res, err := client.Login(context.Background(), LoginRequest{
		Certificate: LoginCertificateFrom(testKey, "Alice", rec),
		Password:    "hunter2",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Success || res.Message != "Welcome" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.Password != "hunter2" || got.Certificate.Key != testKey.String() || got.Certificate.CertificateNumber != "42" {
		t.Fatalf("unexpected login body %+v", got)
	}
}

func TestLoginRequiresEndpoint(t *testing.T) {
	client, _ := NewClient("", Options{}, nil)
	if _, err := client.Login(context.Background(), LoginRequest{}); err == nil {
		t.Fatalf("expected error without login endpoint")
	}
}
