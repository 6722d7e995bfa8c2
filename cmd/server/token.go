package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/and161185/access-sync/internal/authctx"
)

// issueToken mints an operator bearer token: access-sync token -sub ops@co.com [-ttl 720h].
func issueToken(args []string, stdout, stderr io.Writer) int {
	fl := flag.NewFlagSet("token", flag.ContinueOnError)
	fl.SetOutput(stderr)
	sub := fl.String("sub", "", "operator subject (usually an email)")
	ttl := fl.Duration("ttl", 30*24*time.Hour, "token lifetime")
	key := fl.String("jwt-key", os.Getenv("JWT_KEY"), "HS256 signing key")
	if err := fl.Parse(args); err != nil {
		return 2
	}
	if *key == "" {
		fmt.Fprintln(stderr, "missing signing key (-jwt-key or JWT_KEY)")
		return 2
	}
	tok, err := authctx.IssueToken(*sub, []byte(*key), *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, "token:", err)
		return 1
	}
	fmt.Fprintln(stdout, tok)
	return 0
}
