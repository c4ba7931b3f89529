package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eldtechnologies/inquire/internal/api/middleware"
)

func main() {
	secret := flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "Webhook secret (defaults to $WEBHOOK_SECRET)")
	bodyFile := flag.String("body", "", "File containing webhook body (or use stdin)")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -secret <webhook-secret> [-body <file>]")
		fmt.Fprintln(os.Stderr, "  Reads body from stdin if -body not specified")
		os.Exit(1)
	}

	// Read body
	var body []byte
	var err error
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	// Output header
	fmt.Printf("%s: %s\n", middleware.SignatureHeader, middleware.Sign([]byte(*secret), body))
}
