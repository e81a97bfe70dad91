package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"callscope/internal/calls"
)

// callDetail is the JSON shape of `calls show` and `process --json`.
type callDetail struct {
	Call     *calls.Call     `json:"call"`
	Analysis *calls.Analysis `json:"analysis,omitempty"`
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func renderCallDetail(out io.Writer, call *calls.Call, record *calls.Analysis) {
	fmt.Fprintf(out, "%s\n", call.Title())
	fmt.Fprintf(out, "  ID:        %s\n", call.ID)
	fmt.Fprintf(out, "  Owner:     %s\n", call.OwnerID)
	fmt.Fprintf(out, "  Status:    %s\n", call.Status)
	fmt.Fprintf(out, "  File:      %s\n", call.FileName)
	fmt.Fprintf(out, "  Duration:  %s (%d segment(s))\n", formatSeconds(call.DurationSeconds), call.SegmentCount)
	fmt.Fprintf(out, "  Created:   %s\n", formatTimestamp(call.CreatedAt))
	if record == nil {
		return
	}

	fmt.Fprintf(out, "\nOutcome: %s (%d/100)\n", record.Outcome, record.OutcomeScore)
	if record.ExecutiveSummary != "" {
		fmt.Fprintf(out, "\n%s\n", record.ExecutiveSummary)
	}
	writeList(out, "Strengths", record.Strengths)
	writeList(out, "Improvements", record.Improvements)

	if len(record.PrincipleScores) > 0 {
		rows := make([][]string, 0, len(record.PrincipleScores))
		for _, p := range record.PrincipleScores {
			rows = append(rows, []string{p.Principle, strconv.Itoa(p.Score), p.Recommendation})
		}
		fmt.Fprintf(out, "\nPrinciples\n%s\n", renderTable([]string{"Principle", "Score", "Recommendation"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	}
	if len(record.Objections) > 0 {
		rows := make([][]string, 0, len(record.Objections))
		for _, o := range record.Objections {
			rows = append(rows, []string{o.Objection, yesNo(o.Handled), o.Suggestion})
		}
		fmt.Fprintf(out, "\nObjections\n%s\n", renderTable([]string{"Objection", "Handled", "Suggestion"}, rows, nil))
	}
	for _, s := range record.RevivalScripts {
		fmt.Fprintf(out, "\nRevival script (%s):\n%s\n", s.Channel, indent(s.Script, "  "))
	}
}

func writeList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
