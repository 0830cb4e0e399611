package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"noskid/internal/infra/checkapi"
	"noskid/pkg/certpayload"
)

// runLogin verifies a certificate and then forwards it with a password to a
// relying site's login endpoint.
func runLogin(args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f verifyFlags
	var endpoint, password string
	fs.StringVar(&f.file, "file", "", "certificate PNG path")
	fs.StringVar(&endpoint, "endpoint", "", "login endpoint URL")
	fs.StringVar(&password, "password", "", "password (defaults to $NOSKID_PASSWORD)")
	f.register(fs)

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if f.file == "" || endpoint == "" {
		fmt.Fprintln(stderr, "login requires --file and --endpoint")
		return exitUsage
	}
	if password == "" {
		password = os.Getenv("NOSKID_PASSWORD")
	}

	data, err := os.ReadFile(f.file)
	if err != nil {
		fmt.Fprintf(stderr, "read certificate: %v\n", err)
		return exitUsage
	}
	uc, err := f.verifier()
	if err != nil {
		fmt.Fprintf(stderr, "init client: %v\n", err)
		return exitUsage
	}
	verdict := uc.VerifyFromFile(context.Background(), data, f.options())
	if !verdict.IsValid() {
		printVerdict(stdout, verdict, f.legacy)
		return exitCode(verdict)
	}

	localUsername := verdict.Record.DisplayName(f.legacy)
	if text, found, _ := certpayload.FromPNG(data); found {
		if claim, ok := certpayload.DecodeClaim(text); ok {
			localUsername = claim.Username
		}
	}

	loginClient, err := checkapi.NewClient(f.api, checkapi.Options{Timeout: f.timeout, LoginURL: endpoint}, httpClient)
	if err != nil {
		fmt.Fprintf(stderr, "init client: %v\n", err)
		return exitUsage
	}
	res, err := loginClient.Login(context.Background(), checkapi.LoginRequest{
		Certificate: checkapi.LoginCertificateFrom(verdict.Key, localUsername, *verdict.Record),
		Password:    password,
	})
	if err != nil {
		inconclusiveColor.Fprint(stdout, "LOGIN FAILED")
		fmt.Fprintln(stdout, "  Login API unavailable")
		fmt.Fprintf(stderr, "login: %v\n", err)
		return exitInconclusive
	}
	if !res.Success {
		invalidColor.Fprint(stdout, "LOGIN REFUSED")
		fmt.Fprintf(stdout, "  %s\n", res.Message)
		return exitInvalid
	}
	validColor.Fprint(stdout, "LOGGED IN")
	fmt.Fprintf(stdout, "  %s\n", res.Message)
	return exitValid
}
