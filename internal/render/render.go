// Package render turns a completed analysis report into console text
// and PR comment markdown. Rendering is deterministic: the same report
// produces byte-identical output, so comment updates diff cleanly
// across reruns.
package render

import (
	"fmt"
	"strings"

	"github.com/prodsensor/action/internal/api"
)

// CommentMarker is the invisible token embedded in every published
// comment body. The publisher locates an existing comment by this
// marker so reruns update in place instead of duplicating.
const CommentMarker = "<!-- prodsensor-analysis -->"

// MaxCommentLen is the maximum comment body length. GitHub's hard
// limit is ~65536; we leave headroom.
const MaxCommentLen = 60000

// maxBlockersShown caps the blocker list in the comment to bound
// comment size.
const maxBlockersShown = 5

// maxBlockerDescLen truncates individual blocker descriptions.
const maxBlockerDescLen = 200

// Console renders the report as plain text for CI logs: verdict,
// score, severity counts, then findings grouped by dimension in
// service priority order.
func Console(r *api.Report) string {
	var b strings.Builder

	rule := strings.Repeat("=", 50)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "VERDICT: %s\n", r.Verdict)
	fmt.Fprintf(&b, "SCORE: %d/100\n", r.Score)
	fmt.Fprintf(&b, "BLOCKERS: %d\n", r.CountBySeverity(api.SeverityBlocker))
	fmt.Fprintf(&b, "MAJOR: %d\n", r.CountBySeverity(api.SeverityMajor))
	fmt.Fprintf(&b, "MINOR: %d\n", r.CountBySeverity(api.SeverityMinor))
	fmt.Fprintln(&b, rule)

	for _, dim := range findingDimensions(r.Findings) {
		fmt.Fprintf(&b, "\n[%s]\n", dimensionLabel(dim))
		for _, f := range r.Findings {
			if f.Dimension != dim {
				continue
			}
			fmt.Fprintf(&b, "  %-7s %s\n", string(f.Severity)+":", f.Title)
		}
	}

	if len(r.Findings) > 0 {
		fmt.Fprintln(&b)
	}
	fmt.Fprintf(&b, "Full report: %s\n", r.ReportURL)

	return b.String()
}

// CommentMarkdown renders the PR comment body, marker first. Section
// order is fixed: summary header, severity table, dimension scores,
// top blockers, report link.
func CommentMarkdown(r *api.Report) string {
	var b strings.Builder

	emoji, verdictText := verdictBadge(r.Verdict)

	fmt.Fprintf(&b, "%s\n## %s ProdSensor Analysis\n\n", CommentMarker, emoji)
	fmt.Fprintf(&b, "**%s**\n\n", verdictText)
	fmt.Fprintf(&b, "**Score:** %d/100\n\n", r.Score)

	fmt.Fprintf(&b, "### Findings Summary\n")
	fmt.Fprintf(&b, "| Severity | Count |\n")
	fmt.Fprintf(&b, "|----------|-------|\n")
	fmt.Fprintf(&b, "| :rotating_light: Blockers | %d |\n", r.CountBySeverity(api.SeverityBlocker))
	fmt.Fprintf(&b, "| :warning: Major | %d |\n", r.CountBySeverity(api.SeverityMajor))
	fmt.Fprintf(&b, "| :information_source: Minor | %d |\n", r.CountBySeverity(api.SeverityMinor))

	if len(r.Dimensions) > 0 {
		fmt.Fprintf(&b, "\n### Dimension Scores\n")
		fmt.Fprintf(&b, "| Dimension | Score | Status |\n")
		fmt.Fprintf(&b, "|-----------|-------|--------|\n")
		for _, d := range r.Dimensions {
			fmt.Fprintf(&b, "| %s | %d | %s |\n",
				dimensionLabel(d.Name), d.Score, scoreCircle(d.Score))
		}
	}

	blockers := filterSeverity(r.Findings, api.SeverityBlocker)
	if len(blockers) > 0 {
		fmt.Fprintf(&b, "\n### :rotating_light: Blockers (Must Fix)\n\n")
		shown := blockers
		if len(shown) > maxBlockersShown {
			shown = shown[:maxBlockersShown]
		}
		for _, f := range shown {
			fmt.Fprintf(&b, "- **%s**\n  %s\n\n", f.Title, truncate(f.Description, maxBlockerDescLen))
		}
		if extra := len(blockers) - maxBlockersShown; extra > 0 {
			fmt.Fprintf(&b, "*...and %d more blockers*\n", extra)
		}
	}

	fmt.Fprintf(&b, "\n---\n*Analyzed by [ProdSensor](https://prodsensor.com) | [View Full Report](%s)*", r.ReportURL)

	body := b.String()
	if len(body) > MaxCommentLen {
		body = body[:MaxCommentLen] + "\n\n...(truncated — comment exceeded size limit)"
	}
	return body
}

func verdictBadge(v api.Verdict) (emoji, text string) {
	switch v {
	case api.VerdictProductionReady:
		return ":white_check_mark:", "PRODUCTION READY"
	case api.VerdictNotProductionReady:
		return ":x:", "NOT PRODUCTION READY"
	case api.VerdictConditionallyReady:
		return ":warning:", "CONDITIONALLY READY"
	default:
		return ":grey_question:", string(v)
	}
}

func scoreCircle(score int) string {
	switch {
	case score >= 70:
		return ":green_circle:"
	case score >= 50:
		return ":yellow_circle:"
	default:
		return ":red_circle:"
	}
}

// findingDimensions returns dimensions in order of first appearance,
// preserving the service's priority ordering.
func findingDimensions(findings []api.Finding) []string {
	seen := make(map[string]bool)
	var dims []string
	for _, f := range findings {
		if !seen[f.Dimension] {
			seen[f.Dimension] = true
			dims = append(dims, f.Dimension)
		}
	}
	return dims
}

func filterSeverity(findings []api.Finding, sev api.Severity) []api.Finding {
	var out []api.Finding
	for _, f := range findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// dimensionLabel converts a wire dimension name like "error_handling"
// into "Error Handling".
func dimensionLabel(name string) string {
	if name == "" {
		return "General"
	}
	words := strings.Split(strings.ReplaceAll(name, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
