package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/ahrav/go-whoami/infrastructure/scoring"
	"github.com/ahrav/go-whoami/internal/application"
	"github.com/ahrav/go-whoami/internal/domain"
)

var (
	passedLabel  = color.New(color.FgGreen).SprintFunc()
	failedLabel  = color.New(color.FgRed).SprintFunc()
	erroredLabel = color.New(color.FgYellow).SprintFunc()
)

// printReport writes a per-test table followed by the run summary and the
// identities claimed by failing tests.
func printReport(w io.Writer, result *domain.SuiteResult) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Test", "Type", "Status", "Score"})
	table.SetAutoWrapText(false)
	for _, o := range result.Outcomes {
		table.Append([]string{
			o.TestID,
			string(o.TestType),
			statusLabel(o.Status),
			strconv.FormatFloat(o.Score, 'f', 2, 64),
		})
	}
	table.Render()

	counts := result.StatusCounts()
	var b strings.Builder
	fmt.Fprintf(&b, "\nModel: %s\n", result.BackendID)
	fmt.Fprintf(&b, "Suite: %s\n", result.SuiteName)
	fmt.Fprintf(&b, "Overall Score: %.1f%%\n", result.OverallScore*100)
	fmt.Fprintf(&b, "Tests Passed: %d/%d\n", result.PassedTests, result.TotalTests)
	fmt.Fprintf(&b, "Status: %d passed, %d failed, %d errored\n",
		counts[domain.StatusPassed], counts[domain.StatusFailed], counts[domain.StatusErrored])

	if failed := result.Failed(); len(failed) > 0 {
		b.WriteString("\nFailed tests:\n")
		for _, o := range failed {
			fmt.Fprintf(&b, "  - %s (%s)\n", o.TestID, o.TestType)
			if o.Status == domain.StatusErrored {
				fmt.Fprintf(&b, "    Error: %v\n", o.Details[application.DetailError])
				continue
			}
			fmt.Fprintf(&b, "    Claimed: %v\n", o.Details[scoring.DetailClaimedOtherModels])
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusLabel(s domain.OutcomeStatus) string {
	switch s {
	case domain.StatusPassed:
		return passedLabel(string(s))
	case domain.StatusFailed:
		return failedLabel(string(s))
	default:
		return erroredLabel(string(s))
	}
}
