package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	exitValid        = 0
	exitUsage        = 1
	exitInvalid      = 2
	exitInconclusive = 3
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return exitUsage
	}

	switch args[1] {
	case "verify":
		return runVerify(args[2:])
	case "login":
		return runLogin(args[2:])
	case "payload":
		if len(args) >= 3 {
			switch args[2] {
			case "encode":
				return runPayloadEncode(args[3:])
			case "inspect":
				return runPayloadInspect(args[3:])
			}
		}
	case "embed":
		return runEmbed(args[2:])
	}

	usage(args)
	return exitUsage
}

func usage(args []string) {
	name := "noskid"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(stderr, "usage:\n")
	fmt.Fprintf(stderr, "  %s verify (--key <hex>|--file <cert.png>) [--api <url>] [--strict=false] [--allow-boosted=false] [--legacy] [--timeout 10s] [--json]\n", name)
	fmt.Fprintf(stderr, "  %s login --file <cert.png> --endpoint <url> [--password <pw>] [--api <url>]\n", name)
	fmt.Fprintf(stderr, "  %s payload encode --key <hex> --number <n> --username <name> [--created <time>] [--out <file>]\n", name)
	fmt.Fprintf(stderr, "  %s payload inspect --file <cert.png>\n", name)
	fmt.Fprintf(stderr, "  %s embed --in <image.png> --out <cert.png> --key <hex> --number <n> --username <name> [--created <time>]\n", name)
}
