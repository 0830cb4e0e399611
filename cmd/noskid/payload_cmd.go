package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"noskid/pkg/certpayload"
)

const createdLayout = "2006-01-02 15:04:05"

type payloadFlags struct {
	key      string
	number   string
	username string
	created  string
}

func (f *payloadFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.key, "key", "", "64-character hex verification key")
	fs.StringVar(&f.number, "number", "", "certificate number")
	fs.StringVar(&f.username, "username", "", "holder name as shown on the certificate")
	fs.StringVar(&f.created, "created", "", "creation timestamp (defaults to now, UTC)")
}

func (f *payloadFlags) payload() certpayload.Payload {
	created := f.created
	if created == "" {
		created = time.Now().UTC().Format(createdLayout)
	}
	return certpayload.Payload{Key: f.key, Number: f.number, Username: f.username, CreatedAt: created}
}

func runPayloadEncode(args []string) int {
	fs := flag.NewFlagSet("payload encode", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f payloadFlags
	var outPath string
	f.register(fs)
	fs.StringVar(&outPath, "out", "", "output path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	text, err := certpayload.Encode(f.payload())
	if err != nil {
		fmt.Fprintf(stderr, "encode payload: %v\n", err)
		return exitUsage
	}
	if err := writeOutput(outPath, []byte(text)); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return exitUsage
	}
	return exitValid
}

func runPayloadInspect(args []string) int {
	fs := flag.NewFlagSet("payload inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var filePath string
	fs.StringVar(&filePath, "file", "", "certificate PNG path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "payload inspect requires --file")
		return exitUsage
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(stderr, "read certificate: %v\n", err)
		return exitUsage
	}

	text, found, err := certpayload.FromPNG(data)
	if err != nil {
		fmt.Fprintf(stderr, "File must be a PNG image\n")
		return exitInvalid
	}
	if !found {
		fmt.Fprintln(stderr, "Could not extract verification data from file")
		return exitInvalid
	}
	key, ok := certpayload.ExtractKey(text)
	if !ok {
		fmt.Fprintln(stderr, "No valid verification key found in certificate")
		return exitInvalid
	}
	fmt.Fprintf(stdout, "key: %s\n", key)
	if claim, ok := certpayload.DecodeClaim(text); ok {
		fmt.Fprintf(stdout, "username: %s\n", claim.Username)
		fmt.Fprintf(stdout, "created: %s\n", claim.CreationDate)
	} else {
		fmt.Fprintln(stdout, "local data: none")
	}
	return exitValid
}
