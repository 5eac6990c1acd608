package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// WriteCSV renders judgments as a spreadsheet-friendly table, one row per
// candidate in ranked order.
func WriteCSV(w io.Writer, judgments []Judgment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"title", "patentNumber", "filingDate", "score", "reason", "status", "googlePatentUrl"}); err != nil {
		return err
	}
	for _, jd := range judgments {
		score := ""
		if jd.Verdict.HasScore() {
			score = fmt.Sprintf("%.2f", *jd.Verdict.Score)
		}
		row := []string{
			jd.Candidate.Title,
			jd.Candidate.PatentNumber,
			jd.Candidate.FilingDate,
			score,
			jd.Verdict.Reason,
			string(jd.Verdict.Status),
			jd.Candidate.GooglePatentURL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildReportMarkdown renders an outcome as a markdown report, the input to
// the PDF export. Unscored candidates are left out of the result section.
func BuildReportMarkdown(query string, out Outcome) string {
	var b strings.Builder
	b.WriteString("# Prior Art Search Report\n\n")
	b.WriteString("**Query:**\n\n")
	b.WriteString("> " + strings.ReplaceAll(strings.TrimSpace(query), "\n", "\n> ") + "\n\n")

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Candidates retrieved | %d |\n", out.TotalCandidates)
	fmt.Fprintf(&b, "| Candidates analyzed | %d |\n", out.Summary.Analyzed)
	fmt.Fprintf(&b, "| High confidence (score >= %.0f) | %d |\n", out.Summary.ScoreThreshold, out.Summary.HighConfidence)
	fmt.Fprintf(&b, "| Medium confidence | %d |\n", out.Summary.MediumConfidence)
	fmt.Fprintf(&b, "| Stopped early | %t |\n", out.StoppedEarly)
	b.WriteString("\n## Results\n\n")

	n := 0
	for _, jd := range out.Ranked {
		if !jd.Verdict.HasScore() {
			continue
		}
		n++
		fmt.Fprintf(&b, "### %d. %s\n\n", n, jd.Candidate.Title)
		fmt.Fprintf(&b, "**Score:** %.1f\n\n", *jd.Verdict.Score)
		if jd.Candidate.PatentNumber != "" {
			if jd.Candidate.GooglePatentURL != "" {
				fmt.Fprintf(&b, "**Patent:** [%s](%s)\n\n", jd.Candidate.PatentNumber, jd.Candidate.GooglePatentURL)
			} else {
				fmt.Fprintf(&b, "**Patent:** %s\n\n", jd.Candidate.PatentNumber)
			}
		}
		if jd.Candidate.FilingDate != "" {
			fmt.Fprintf(&b, "**Filing date:** %s\n\n", jd.Candidate.FilingDate)
		}
		if jd.Verdict.Reason != "" {
			fmt.Fprintf(&b, "%s\n\n", jd.Verdict.Reason)
		}
	}
	if n == 0 {
		b.WriteString("No scored candidates.\n")
	}
	return b.String()
}
