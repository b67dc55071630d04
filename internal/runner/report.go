package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Accepted returns how many results in the run succeeded
func Accepted(results []Result) int {
	n := 0
	for _, res := range results {
		if res.Succeeded {
			n++
		}
	}
	return n
}

// Report writes one outcome line per result plus a summary line. Failure
// detail is reproduced verbatim so endpoint reply codes stay visible.
func Report(w io.Writer, results []Result) {
	for _, res := range results {
		if res.Succeeded {
			fmt.Fprintf(w, "ok      %-28s [%s] %s\n",
				res.CaseName, res.Category, res.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(w, "FAILED  %-28s [%s] %s\n",
				res.CaseName, res.Category, res.ErrorDetail)
		}
	}

	fmt.Fprintf(w, "\n%d/%d cases accepted\n", Accepted(results), len(results))
}

// ReportJSON writes the results as an indented JSON array
func ReportJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
