package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"noskid/internal/domain"
	"noskid/internal/infra/checkapi"
	"noskid/internal/infra/logging"
	"noskid/internal/usecase"
)

const defaultCheckURL = "https://check.noskid.today/"

// httpClient is replaced in tests.
var httpClient *http.Client

type verifyFlags struct {
	key          string
	file         string
	api          string
	strict       bool
	allowBoosted bool
	legacy       bool
	timeout      time.Duration
	verbose      bool
}

func (f *verifyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.api, "api", defaultCheckURL, "cache server or authority check URL")
	fs.BoolVar(&f.strict, "strict", true, "compare the certificate's embedded name and date with the authority")
	fs.BoolVar(&f.allowBoosted, "allow-boosted", true, "accept boosted certificates")
	fs.BoolVar(&f.legacy, "legacy", false, "compare against username instead of nickname")
	fs.DurationVar(&f.timeout, "timeout", usecase.DefaultAuthorityTimeout, "authority request timeout")
	fs.BoolVar(&f.verbose, "v", false, "log verification steps to stderr")
}

func (f *verifyFlags) options() usecase.VerifyOptions {
	return usecase.VerifyOptions{
		Strict:         f.strict,
		AllowBoosted:   f.allowBoosted,
		UseLegacyField: f.legacy,
		Timeout:        f.timeout,
	}
}

func (f *verifyFlags) verifier() (*usecase.VerifyCertificate, error) {
	client, err := checkapi.NewClient(f.api, checkapi.Options{Timeout: f.timeout}, httpClient)
	if err != nil {
		return nil, err
	}
	log := logging.Discard()
	if f.verbose {
		log = logging.New("debug", "text")
		log.SetOutput(stderr)
	}
	return &usecase.VerifyCertificate{Authority: client, Logger: log, Timeout: f.timeout}, nil
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f verifyFlags
	var asJSON bool
	fs.StringVar(&f.key, "key", "", "64-character hex verification key")
	fs.StringVar(&f.file, "file", "", "certificate PNG path")
	fs.BoolVar(&asJSON, "json", false, "print the result as JSON")
	f.register(fs)

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if (f.key == "" && f.file == "") || (f.key != "" && f.file != "") {
		fmt.Fprintln(stderr, "verify requires exactly one of --key or --file")
		return exitUsage
	}

	uc, err := f.verifier()
	if err != nil {
		fmt.Fprintf(stderr, "init client: %v\n", err)
		return exitUsage
	}

	var verdict domain.Verdict
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			fmt.Fprintf(stderr, "read certificate: %v\n", err)
			return exitUsage
		}
		verdict = uc.VerifyFromFile(context.Background(), data, f.options())
	} else {
		verdict = uc.VerifyWithKey(context.Background(), f.key, f.options())
	}

	if asJSON {
		if err := printVerdictJSON(stdout, verdict, f.legacy); err != nil {
			fmt.Fprintf(stderr, "write output: %v\n", err)
			return exitUsage
		}
	} else {
		printVerdict(stdout, verdict, f.legacy)
	}
	return exitCode(verdict)
}
