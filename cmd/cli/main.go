// Command gov is the operator CLI for the access-sync service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/and161185/access-sync/internal/convert"
	"github.com/and161185/access-sync/internal/platform/httpx"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `gov CLI
Usage:
  gov [-addr URL] [-json] <cmd> [args]

Commands:
  version
  login     -token <JWT>                     (saves token)
  trigger   [-jobs a,b]                      (start a sync run)
  status                                     (job registry)
  watch     [-until-idle]                    (live job status)
  check     -platform P -email E
  suspend   -platform P -email E
  accounts  -employee <uuid>
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fl := flag.NewFlagSet("gov", flag.ContinueOnError)
	fl.SetOutput(stderr)
	fl.Usage = func() { fmt.Fprint(stderr, usageText) }
	addr := fl.String("addr", envOr("GOV_ADDR", "http://localhost:8080"), "service base URL")
	asJSON := fl.Bool("json", false, "print raw JSON")
	if err := fl.Parse(args); err != nil {
		return 2
	}
	if fl.NArg() < 1 {
		fl.Usage()
		return 2
	}
	cmd, rest := fl.Arg(0), fl.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "gov %s (%s)\n", version, buildDate)
		return 0
	}
	if cmd == "login" {
		return cmdLogin(rest, stdout, stderr)
	}

	token, err := loadToken()
	if err != nil {
		return fail(stderr, err)
	}
	api := newAPIClient(*addr, token)

	if cmd == "watch" {
		return cmdWatch(ctx, api, rest, stdout, stderr)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cmd {
	case "trigger":
		sub := flag.NewFlagSet("trigger", flag.ContinueOnError)
		sub.SetOutput(stderr)
		jobs := sub.String("jobs", "", "comma-separated job names (default: all)")
		if err := sub.Parse(rest); err != nil {
			return 2
		}
		out, err := api.Trigger(ctx, *jobs)
		if err != nil {
			return fail(stderr, err)
		}
		if *asJSON {
			printJSON(stdout, out)
			return 0
		}
		fmt.Fprintf(stdout, "%s: %s\n", out.Message, strings.Join(out.Jobs, ", "))

	case "status":
		jobs, err := api.Status(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		if *asJSON {
			printJSON(stdout, jobs)
			return 0
		}
		renderJobs(stdout, jobs)

	case "check", "suspend":
		sub := flag.NewFlagSet(cmd, flag.ContinueOnError)
		sub.SetOutput(stderr)
		platform := sub.String("platform", "", "platform key (GOOGLE, SLACK, JUMPCLOUD, ATLASSIAN, LDAP)")
		email := sub.String("email", "", "user email")
		if err := sub.Parse(rest); err != nil {
			return 2
		}
		if *platform == "" || *email == "" {
			fmt.Fprintln(stderr, "need -platform and -email")
			return 2
		}
		var out any
		if cmd == "check" {
			out, err = api.Check(ctx, *platform, *email)
		} else {
			out, err = api.Suspend(ctx, *platform, *email)
		}
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, out)
		if s, ok := out.(convert.SuspendView); ok && !s.Success {
			return 1
		}

	case "accounts":
		sub := flag.NewFlagSet("accounts", flag.ContinueOnError)
		sub.SetOutput(stderr)
		employee := sub.String("employee", "", "employee id (uuid)")
		if err := sub.Parse(rest); err != nil {
			return 2
		}
		if *employee == "" {
			fmt.Fprintln(stderr, "need -employee")
			return 2
		}
		accounts, err := api.Accounts(ctx, *employee)
		if err != nil {
			return fail(stderr, err)
		}
		if *asJSON {
			printJSON(stdout, accounts)
			return 0
		}
		renderAccounts(stdout, accounts)

	default:
		fl.Usage()
		return 2
	}
	return 0
}

func cmdLogin(args []string, stdout, stderr io.Writer) int {
	sub := flag.NewFlagSet("login", flag.ContinueOnError)
	sub.SetOutput(stderr)
	tok := sub.String("token", "", "operator JWT (from access-sync token)")
	if err := sub.Parse(args); err != nil {
		return 2
	}
	if *tok == "" {
		fmt.Fprintln(stderr, "need -token")
		return 2
	}
	subject, exp, err := tokenClaims(*tok)
	if err != nil {
		return fail(stderr, fmt.Errorf("parse token: %w", err))
	}
	if err := saveToken(strings.TrimSpace(*tok), subject, exp); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "ok (%s, expires %s)\n", subject, exp.UTC().Format(time.RFC3339))
	return 0
}

func cmdWatch(ctx context.Context, api *apiClient, args []string, stdout, stderr io.Writer) int {
	sub := flag.NewFlagSet("watch", flag.ContinueOnError)
	sub.SetOutput(stderr)
	untilIdle := sub.Bool("until-idle", false, "exit once no job is RUNNING")
	if err := sub.Parse(args); err != nil {
		return 2
	}
	err := api.Watch(ctx, func(jobs []convert.JobView) bool {
		fmt.Fprintf(stdout, "--- %s\n", time.Now().UTC().Format(time.RFC3339))
		renderJobs(stdout, jobs)
		return !(*untilIdle && settled(jobs))
	})
	if err != nil && ctx.Err() == nil {
		return fail(stderr, err)
	}
	return 0
}

func fail(w io.Writer, err error) int {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		msg := se.Body
		if se.StatusCode == http.StatusConflict {
			msg = "a sync run is already in progress"
		}
		fmt.Fprintf(w, "http error: code=%d msg=%s\n", se.StatusCode, msg)
		return 1
	}
	fmt.Fprintln(w, err)
	return 1
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
