// Package runner drives a probe run: it renders catalogue cases, submits
// them sequentially over fresh connections, and collects one outcome per case
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/busybox42/mailprobe/internal/catalogue"
	"github.com/busybox42/mailprobe/internal/message"
	"github.com/busybox42/mailprobe/internal/metrics"
	"github.com/busybox42/mailprobe/internal/smtpclient"
)

// Submitter delivers one rendered message to the analysis endpoint. The
// production implementation is smtpclient.Client; tests substitute fakes.
type Submitter interface {
	Submit(ctx context.Context, from, to string, data []byte) error
}

// Config holds pacing and rendering parameters for a run
type Config struct {
	Hostname string        // host label used in generated Message-IDs
	Pause    time.Duration // pause between consecutive cases, 0 disables pacing
}

// Result records the outcome of one test case submission
type Result struct {
	CaseName    string             `json:"case_name"`
	Category    catalogue.Category `json:"category"`
	Succeeded   bool               `json:"succeeded"`
	ErrorDetail string             `json:"error_detail,omitempty"`
	Duration    time.Duration      `json:"duration_ns"`
}

// Runner submits catalogue cases one at a time, in catalogue order. A
// failing case is recorded and the run moves on to the next; per-case
// failures never abort the run.
type Runner struct {
	submitter Submitter
	config    Config
	logger    *slog.Logger
	progress  io.Writer
	metrics   *metrics.Metrics
}

// New creates a runner that submits through the given submitter
func New(submitter Submitter, config Config) *Runner {
	return &Runner{
		submitter: submitter,
		config:    config,
		logger:    slog.Default().With("component", "runner"),
		progress:  os.Stdout,
		metrics:   metrics.Get(),
	}
}

// SetProgress redirects the per-case progress output, which defaults to
// stdout. Watch mode points it at io.Discard and relies on logs instead.
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

// Run submits every case in order and returns one result per case. The
// slice preserves catalogue order and always has len(cases) entries.
func (r *Runner) Run(ctx context.Context, cases []catalogue.TestCase) []Result {
	results := make([]Result, 0, len(cases))

	for i, tc := range cases {
		if i > 0 && r.config.Pause > 0 {
			select {
			case <-time.After(r.config.Pause):
			case <-ctx.Done():
				// Remaining cases still get attempted; their submissions
				// fail fast against the cancelled context.
			}
		}

		fmt.Fprintf(r.progress, "==> %s [%s]\n", tc.Name, tc.Category)
		fmt.Fprintf(r.progress, "    From:    %s\n", tc.From)
		fmt.Fprintf(r.progress, "    To:      %s\n", tc.To)
		fmt.Fprintf(r.progress, "    Subject: %s\n", tc.Subject)

		result := r.submitCase(ctx, tc)
		results = append(results, result)

		if result.Succeeded {
			fmt.Fprintf(r.progress, "    result:  accepted (%s)\n", result.Duration.Round(time.Millisecond))
			r.logger.Info("case accepted",
				"case", tc.Name,
				"category", tc.Category,
				"duration", result.Duration)
		} else {
			fmt.Fprintf(r.progress, "    result:  FAILED: %s\n", result.ErrorDetail)
			r.logger.Error("case failed",
				"case", tc.Name,
				"category", tc.Category,
				"error", result.ErrorDetail)
		}
	}

	r.metrics.RecordRun()
	r.logger.Info("probe run complete",
		"cases", len(results),
		"accepted", Accepted(results),
		"failed", len(results)-Accepted(results))

	return results
}

// submitCase renders and submits a single case, converting any failure into
// the case's result
func (r *Runner) submitCase(ctx context.Context, tc catalogue.TestCase) Result {
	payload, err := message.Render(tc, r.config.Hostname)
	if err != nil {
		return Result{
			CaseName:    tc.Name,
			Category:    tc.Category,
			ErrorDetail: fmt.Sprintf("failed to render message: %v", err),
		}
	}

	start := time.Now()
	err = r.submitter.Submit(ctx, tc.From, tc.To, payload)
	duration := time.Since(start)

	failureKind := ""
	if err != nil {
		failureKind = smtpclient.ClassifyFailure(err)
	}
	r.metrics.RecordSubmission(string(tc.Category), len(payload), duration, failureKind)

	result := Result{
		CaseName: tc.Name,
		Category: tc.Category,
		Duration: duration,
	}
	if err != nil {
		result.ErrorDetail = err.Error()
		return result
	}

	result.Succeeded = true
	return result
}
