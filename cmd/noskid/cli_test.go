package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

const testKey = "3f1c9a0b7d2e4f6a8b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f60718293a4b5c6"

const validBody = `{"success":true,"message":"Certificate is valid and verified","cached":true,"data":{
	"certificate_number":"42","username":"Alice42","nickname":"Alice","percentage":87.5,"boosted":false,
	"creationDate":"2024-01-01 10:00:00","country":"France","countryCode":"FR"}}`

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = prevOut, prevErr })
	return &out, &errOut
}

func fakeCheckServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"message":"Welcome back"}`))
			return
		}
		if r.URL.Query().Get("key") != testKey {
			t.Errorf("unexpected key %q", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	prev := httpClient
	httpClient = srv.Client()
	t.Cleanup(func() { httpClient = prev })
	return srv.URL
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, "blank.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

func TestRunUsage(t *testing.T) {
	_, errOut := captureOutput(t)
	if code := run([]string{"noskid"}); code != exitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage:") {
		t.Fatalf("expected usage text")
	}
	if code := run([]string{"noskid", "verify"}); code != exitUsage {
		t.Fatalf("expected usage exit without key or file, got %d", code)
	}
}

func TestVerifyKeyValid(t *testing.T) {
	out, _ := captureOutput(t)
	api := fakeCheckServer(t, http.StatusOK, validBody)

	code := run([]string{"noskid", "verify", "--key", testKey, "--api", api + "/"})
	if code != exitValid {
		t.Fatalf("expected valid exit, got %d: %s", code, out.String())
	}
	text := out.String()
	if !strings.Contains(text, "VALID") || !strings.Contains(text, "(cached)") || !strings.Contains(text, "- Certificate #: 42") {
		t.Fatalf("unexpected output %q", text)
	}
}

func TestVerifyKeyJSON(t *testing.T) {
	out, _ := captureOutput(t)
	api := fakeCheckServer(t, http.StatusOK, `{"success":false,"message":"Certificate not found or invalid verification key"}`)

	code := run([]string{"noskid", "verify", "--json", "--key", testKey, "--api", api + "/"})
	if code != exitInvalid {
		t.Fatalf("expected invalid exit, got %d", code)
	}
	var got verifyOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Valid || got.Status != "invalid" || got.Query != testKey {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestVerifyUnavailable(t *testing.T) {
	captureOutput(t)
	api := fakeCheckServer(t, http.StatusServiceUnavailable, ``)
	if code := run([]string{"noskid", "verify", "--key", testKey, "--api", api + "/"}); code != exitInconclusive {
		t.Fatalf("expected inconclusive exit, got %d", code)
	}
}

func TestEmbedInspectVerifyFile(t *testing.T) {
	out, _ := captureOutput(t)
	dir := t.TempDir()
	src := writePNG(t, dir)
	cert := filepath.Join(dir, "cert.png")

	code := run([]string{"noskid", "embed", "--in", src, "--out", cert,
		"--key", testKey, "--number", "42", "--username", "Alice", "--created", "2024-01-01 10:00:00"})
	if code != exitValid {
		t.Fatalf("embed failed with %d", code)
	}

	out.Reset()
	if code := run([]string{"noskid", "payload", "inspect", "--file", cert}); code != exitValid {
		t.Fatalf("inspect failed with %d", code)
	}
	if !strings.Contains(out.String(), "key: "+testKey) || !strings.Contains(out.String(), "username: Alice") {
		t.Fatalf("unexpected inspect output %q", out.String())
	}

	api := fakeCheckServer(t, http.StatusOK, validBody)
	out.Reset()
	if code := run([]string{"noskid", "verify", "--file", cert, "--api", api + "/"}); code != exitValid {
		t.Fatalf("verify file failed with %d: %s", code, out.String())
	}
}

func TestVerifyFileMismatch(t *testing.T) {
	out, _ := captureOutput(t)
	dir := t.TempDir()
	src := writePNG(t, dir)
	cert := filepath.Join(dir, "cert.png")
	run([]string{"noskid", "embed", "--in", src, "--out", cert,
		"--key", testKey, "--number", "42", "--username", "Mallory", "--created", "2024-01-01 10:00:00"})

	api := fakeCheckServer(t, http.StatusOK, validBody)
	out.Reset()
	if code := run([]string{"noskid", "verify", "--file", cert, "--api", api + "/"}); code != exitInvalid {
		t.Fatalf("expected invalid exit, got %d", code)
	}
	if !strings.Contains(out.String(), "Data mismatch: Username mismatch") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if code := run([]string{"noskid", "verify", "--strict=false", "--file", cert, "--api", api + "/"}); code != exitValid {
		t.Fatalf("expected non-strict pass, got %d", code)
	}
}

func TestPayloadEncode(t *testing.T) {
	out, _ := captureOutput(t)
	code := run([]string{"noskid", "payload", "encode", "--key", testKey, "--number", "7", "--username", "bob", "--created", "2025-01-01 00:00:00"})
	if code != exitValid {
		t.Fatalf("encode failed with %d", code)
	}
	text := out.String()
	if !strings.HasPrefix(text, "-----BEGIN NOSKID KEY-----\n"+testKey+"\n") {
		t.Fatalf("unexpected payload %q", text)
	}

	if code := run([]string{"noskid", "payload", "encode", "--key", "short", "--number", "7", "--username", "bob"}); code != exitUsage {
		t.Fatalf("expected usage exit for bad key, got %d", code)
	}
}

func TestInspectPlainPNG(t *testing.T) {
	captureOutput(t)
	src := writePNG(t, t.TempDir())
	if code := run([]string{"noskid", "payload", "inspect", "--file", src}); code != exitInvalid {
		t.Fatalf("expected invalid exit, got %d", code)
	}
}

func TestLogin(t *testing.T) {
	out, _ := captureOutput(t)
	dir := t.TempDir()
	src := writePNG(t, dir)
	cert := filepath.Join(dir, "cert.png")
	run([]string{"noskid", "embed", "--in", src, "--out", cert,
		"--key", testKey, "--number", "42", "--username", "Alice", "--created", "2024-01-01 10:00:00"})

	api := fakeCheckServer(t, http.StatusOK, validBody)
	out.Reset()
	code := run([]string{"noskid", "login", "--file", cert, "--api", api + "/", "--endpoint", api + "/login", "--password", "pw"})
	if code != exitValid {
		t.Fatalf("expected login success, got %d: %s", code, out.String())
	}
	if !strings.Contains(out.String(), "Welcome back") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
