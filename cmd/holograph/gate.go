package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"holograph/internal/gate"
	"holograph/internal/metrics"
)

var (
	gateMetricsFile string
	gateSlack       float64
)

// gateCmd asserts recorded p95 latencies against the fixed budgets. CI runs
// it against a metrics dump; a failing budget exits non-zero.
var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the CI latency gate against recorded metrics",
	Long: `gate reads a JSON file mapping metric names to recorded millisecond
samples, computes p95 per metric, and asserts each against its budget:

  retrieval_ms    <= 500
  graph_expand_ms <= 200
  packing_ms      <= 550
  reviewer_ms     <= 500  (only when the reviewer is enabled)
  chat_total_ms   <= 1200

The --slack percentage widens every budget and is clamped to [0, 10].`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(gateMetricsFile)
		if err != nil {
			return fmt.Errorf("read metrics file: %w", err)
		}
		var samples map[string][]float64
		if err := json.Unmarshal(data, &samples); err != nil {
			return fmt.Errorf("parse metrics file: %w", err)
		}

		reg := metrics.NewRegistry()
		for name, values := range samples {
			for _, v := range values {
				reg.ObserveHistogram(name, v, nil)
			}
		}

		report := gate.Run(reg, cfg.Reviewer.Enabled, gateSlack)
		fmt.Print(report.String())
		if !report.Passed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	gateCmd.Flags().StringVar(&gateMetricsFile, "metrics-file", "metrics.json",
		"JSON file of recorded metric samples")
	gateCmd.Flags().Float64Var(&gateSlack, "slack", 0,
		"budget slack percentage, clamped to [0, 10]")
}
