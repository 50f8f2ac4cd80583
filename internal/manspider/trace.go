package manspider

import (
	"bufio"
	"fmt"
	"io"
)

// WriteTrace writes a human readable report of how each line was
// handled, followed by the final parser state.
func WriteTrace(w io.Writer, res Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "=== MANSPIDER PARSE TRACE ===")
	for _, rec := range res.Trace {
		fmt.Fprintf(bw, "\n[LINE %d] RAW   : %q\n", rec.Index, rec.Raw)
		fmt.Fprintf(bw, "[LINE %d] CLEAN : %q\n", rec.Index, rec.Clean)
		fmt.Fprintf(bw, "[LINE %d] %s: %s\n", rec.Index, rec.Outcome, rec.Detail)
	}

	hosts := make([]string, 0, len(res.Hosts))
	for _, h := range res.Hosts {
		hosts = append(hosts, h.IP)
	}
	fmt.Fprintln(bw, "\n=== FINAL STATE ===")
	fmt.Fprintf(bw, "logged_in = %q\n", res.LoggedIn)
	fmt.Fprintf(bw, "hosts = %q\n", hosts)
	fmt.Fprintf(bw, "files with matches = %d\n", res.Accumulated)
	return bw.Flush()
}
