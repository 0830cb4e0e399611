package main

import (
	"flag"
	"fmt"
	"os"

	"noskid/pkg/certpayload"
)

func runEmbed(args []string) int {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f payloadFlags
	var inPath, outPath string
	f.register(fs)
	fs.StringVar(&inPath, "in", "", "source PNG path")
	fs.StringVar(&outPath, "out", "", "certificate PNG output path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if inPath == "" || outPath == "" {
		fmt.Fprintln(stderr, "embed requires --in and --out")
		return exitUsage
	}

	src, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(stderr, "read image: %v\n", err)
		return exitUsage
	}
	out, err := certpayload.EmbedPNG(src, f.payload())
	if err != nil {
		fmt.Fprintf(stderr, "embed payload: %v\n", err)
		return exitUsage
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		fmt.Fprintf(stderr, "write certificate: %v\n", err)
		return exitUsage
	}
	return exitValid
}
