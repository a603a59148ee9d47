package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

const (
	reportHeaderTemplateConstant    = "Run %s finished in %s\n"
	reportKindTemplateConstant      = "%-9s"
	reportOutcomeTemplateConstant   = "%s %s"
	reportDetailTemplateConstant    = ": %s"
	reportURLTemplateConstant       = " %s"
	reportSummaryTemplateConstant   = "%d repositories: %d succeeded, %d no-op, %d skipped, %d failed\n"
	reportFailuresHeaderConstant    = "Failed repositories:\n"
	reportFailureLineTemplate       = "  %s [%s] %s\n"
	reportLineTerminatorConstant    = "\n"
	reportDurationPrecisionConstant = time.Millisecond
)

// Summary counts outcomes by kind.
type Summary struct {
	Total     int
	Skipped   int
	NoOp      int
	Succeeded int
	Failed    int
}

// Report aggregates the outcomes of one run in processing order.
type Report struct {
	RunIdentifier string
	Outcomes      []Outcome
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Summary counts the outcomes by kind.
func (report Report) Summary() Summary {
	summary := Summary{Total: len(report.Outcomes)}
	for _, outcome := range report.Outcomes {
		switch outcome.Kind {
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeNoOp:
			summary.NoOp++
		case OutcomeSucceeded:
			summary.Succeeded++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	return summary
}

// Failures returns the failed outcomes in processing order.
func (report Report) Failures() []Outcome {
	failures := make([]Outcome, 0)
	for _, outcome := range report.Outcomes {
		if outcome.Failed() {
			failures = append(failures, outcome)
		}
	}
	return failures
}

// HasFailures reports whether any repository failed.
func (report Report) HasFailures() bool {
	return len(report.Failures()) > 0
}

// Duration returns the wall time of the run.
func (report Report) Duration() time.Duration {
	if report.FinishedAt.Before(report.StartedAt) {
		return 0
	}
	return report.FinishedAt.Sub(report.StartedAt)
}

// RenderReport writes one line per repository, the summary counts and the
// list of failed repositories so operators can retry them. Failures are red
// and successes green when colorize is set.
func RenderReport(writer io.Writer, report Report, colorize bool) error {
	palette := newReportPalette(colorize)

	if _, writeError := fmt.Fprintf(writer, reportHeaderTemplateConstant, report.RunIdentifier, report.Duration().Round(reportDurationPrecisionConstant)); writeError != nil {
		return writeError
	}

	for _, outcome := range report.Outcomes {
		line := fmt.Sprintf(reportOutcomeTemplateConstant, palette.paint(outcome.Kind, fmt.Sprintf(reportKindTemplateConstant, outcome.Kind)), outcome.Repository)
		if len(outcome.Reason) > 0 {
			line += fmt.Sprintf(reportDetailTemplateConstant, outcome.Reason)
		}
		if len(outcome.PullRequestURL) > 0 {
			line += fmt.Sprintf(reportURLTemplateConstant, outcome.PullRequestURL)
		}
		if _, writeError := io.WriteString(writer, line+reportLineTerminatorConstant); writeError != nil {
			return writeError
		}
	}

	summary := report.Summary()
	if _, writeError := fmt.Fprintf(writer, reportSummaryTemplateConstant, summary.Total, summary.Succeeded, summary.NoOp, summary.Skipped, summary.Failed); writeError != nil {
		return writeError
	}

	failures := report.Failures()
	if len(failures) == 0 {
		return nil
	}
	if _, writeError := io.WriteString(writer, palette.failure.Sprint(reportFailuresHeaderConstant)); writeError != nil {
		return writeError
	}
	for _, failure := range failures {
		if _, writeError := fmt.Fprintf(writer, reportFailureLineTemplate, failure.Repository, failure.Stage, failure.Reason); writeError != nil {
			return writeError
		}
	}
	return nil
}

type reportPalette struct {
	success *color.Color
	failure *color.Color
	neutral *color.Color
}

func newReportPalette(colorize bool) reportPalette {
	palette := reportPalette{
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
		neutral: color.New(color.FgYellow),
	}
	for _, painter := range []*color.Color{palette.success, palette.failure, palette.neutral} {
		if colorize {
			painter.EnableColor()
		} else {
			painter.DisableColor()
		}
	}
	return palette
}

func (palette reportPalette) paint(kind OutcomeKind, text string) string {
	switch kind {
	case OutcomeSucceeded:
		return palette.success.Sprint(text)
	case OutcomeFailed:
		return palette.failure.Sprint(text)
	default:
		return palette.neutral.Sprint(text)
	}
}
