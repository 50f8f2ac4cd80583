package main

import (
	"fmt"
	"io"
	"time"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/workflow"
	"github.com/fatih/color"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	gray   = color.New(color.FgHiBlack)
)

func printSummary(w io.Writer, s workflow.Summary) {
	_, _ = bold.Fprintf(w, "%s ", s.Category)
	_, _ = gray.Fprintf(w, "(run %s)\n", s.RunID)

	c := green
	if s.Succeeded < s.Attempted {
		c = red
	}
	_, _ = c.Fprintf(w, "  %d/%d targets succeeded", s.Succeeded, s.Attempted)
	if len(s.Skipped) > 0 {
		_, _ = gray.Fprintf(w, ", %d already scanned", len(s.Skipped))
	}
	fmt.Fprintln(w)

	for _, r := range s.Results {
		if r.Err != nil {
			_, _ = red.Fprintf(w, "  FAIL %s: %v\n", r.Target, r.Err)
			continue
		}
		_, _ = green.Fprintf(w, "  OK   %s", r.Target)
		_, _ = gray.Fprintf(w, " %s\n", r.Elapsed.Round(time.Second))
		for _, st := range r.Steps {
			if st.Err != nil {
				_, _ = yellow.Fprintf(w, "       %s: %v\n", st.Name, st.Err)
			}
		}
	}
}

func printACL(w io.Writer, r workflow.ACLReport, path string) {
	_, _ = bold.Fprintf(w, "acl %s", r.BaseDN)
	_, _ = gray.Fprintf(w, " (%d objects, %s)\n", r.Objects, r.Elapsed.Round(time.Second))
	for _, ace := range r.Findings {
		_, _ = yellow.Fprintf(w, "  %s\n", ace.DN)
		fmt.Fprintf(w, "    trustee: %s\n", ace.Trustee)
		fmt.Fprintf(w, "    rights:  %s\n", ace.Rights)
	}
	_, _ = green.Fprintf(w, "  %d interesting entries in %s\n", len(r.Findings), path)
}

func printScanned(w io.Writer, cat model.Category, targets []string) {
	_, _ = bold.Fprintf(w, "%s", cat)
	_, _ = gray.Fprintf(w, " (%d)\n", len(targets))
	for _, t := range targets {
		fmt.Fprintf(w, "  %s\n", t)
	}
}

func summaryErr(s workflow.Summary) error {
	if failed := len(s.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, s.Attempted)
	}
	return nil
}
