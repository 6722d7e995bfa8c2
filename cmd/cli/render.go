package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/and161185/access-sync/internal/convert"
)

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func when(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func renderJobs(w io.Writer, jobs []convert.JobView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tPROGRESS\tSTEP\tLAST RUN\tLAST SUCCESS\tLAST FAILURE")
	for _, j := range jobs {
		step := j.CurrentStep
		if step == "" {
			step = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\t%s\t%s\n",
			j.Name, j.Status, j.Progress, step, when(j.LastRunAt), when(j.LastSuccessAt), when(j.LastFailureAt))
	}
	_ = tw.Flush()
}

func renderAccounts(w io.Writer, accounts []convert.AccountView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tSTATUS\tLAST SEEN")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.AppKey, a.Status, when(a.LastSeenAt))
	}
	_ = tw.Flush()
}

// settled reports whether no job is RUNNING.
func settled(jobs []convert.JobView) bool {
	for _, j := range jobs {
		if j.Status == "RUNNING" {
			return false
		}
	}
	return true
}
