// Package gate implements the CI latency gate: p95 assertions over recorded
// operation timings against fixed budgets, with an optional environment
// slack for nightly runs.
package gate

import (
	"fmt"
	"strings"

	"holograph/internal/metrics"
)

// Budget is one gated metric.
type Budget struct {
	Metric string
	P95Ms  float64
}

// Budgets returns the gated metrics in report order. reviewerEnabled drops
// the reviewer budget when the stage is off.
func Budgets(reviewerEnabled bool) []Budget {
	budgets := []Budget{
		{Metric: "retrieval_ms", P95Ms: 500},
		{Metric: "graph_expand_ms", P95Ms: 200},
		{Metric: "packing_ms", P95Ms: 550},
	}
	if reviewerEnabled {
		budgets = append(budgets, Budget{Metric: "reviewer_ms", P95Ms: 500})
	}
	budgets = append(budgets, Budget{Metric: "chat_total_ms", P95Ms: 1200})
	return budgets
}

// ClampSlack bounds the environment slack to [0%, 10%].
func ClampSlack(slackPercent float64) float64 {
	if slackPercent < 0 {
		return 0
	}
	if slackPercent > 10 {
		return 10
	}
	return slackPercent
}

// Check is one metric's verdict.
type Check struct {
	Metric    string  `json:"metric"`
	ActualP95 float64 `json:"actual_p95"`
	BudgetMs  float64 `json:"budget_ms"`
	Passed    bool    `json:"passed"`
	Skipped   bool    `json:"skipped"` // no recorded values
	Message   string  `json:"message"`
}

// Report is the gate's full result.
type Report struct {
	Checks       []Check `json:"checks"`
	SlackPercent float64 `json:"slack_percent"`
	Passed       bool    `json:"passed"`
}

// Run evaluates the budgets against the registry's recorded values.
// slackPercent is clamped; each budget is widened by the slack. Metrics with
// no recorded values are skipped, not failed.
func Run(reg *metrics.Registry, reviewerEnabled bool, slackPercent float64) Report {
	slack := ClampSlack(slackPercent)
	report := Report{SlackPercent: slack, Passed: true}

	for _, b := range Budgets(reviewerEnabled) {
		limit := b.P95Ms * (1 + slack/100)
		check := Check{Metric: b.Metric, BudgetMs: limit}

		stats, ok := reg.GetHistogramStats(b.Metric, nil)
		if !ok {
			check.Skipped = true
			check.Passed = true
			check.Message = fmt.Sprintf("%s: no recorded values, skipped", b.Metric)
			report.Checks = append(report.Checks, check)
			continue
		}

		check.ActualP95 = stats.P95
		if stats.P95 <= limit {
			check.Passed = true
			check.Message = fmt.Sprintf("%s: p95 %.1fms within %.1fms", b.Metric, stats.P95, limit)
		} else {
			overage := (stats.P95 - limit) / limit * 100
			check.Message = fmt.Sprintf("%s: %.1fms > %.1fms (+%.1f%% overage)",
				b.Metric, stats.P95, limit, overage)
			report.Passed = false
		}
		report.Checks = append(report.Checks, check)
	}
	return report
}

// String renders the human-readable report, one check per line.
func (r Report) String() string {
	var b strings.Builder
	for _, c := range r.Checks {
		prefix := "PASS"
		if c.Skipped {
			prefix = "SKIP"
		} else if !c.Passed {
			prefix = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s\n", prefix, c.Message)
	}
	if r.Passed {
		fmt.Fprintf(&b, "latency gate passed (slack %.1f%%)\n", r.SlackPercent)
	} else {
		fmt.Fprintf(&b, "latency gate FAILED (slack %.1f%%)\n", r.SlackPercent)
	}
	return b.String()
}
