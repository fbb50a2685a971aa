package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sondrmsk/divrec/internal/report"
	"github.com/sondrmsk/divrec/internal/repository"
)

var reportCycleID string
var reportNotify bool

func init() {
	reportCmd.Flags().StringVar(&reportCycleID, "cycle", "", "cycle to report on (default: latest)")
	reportCmd.Flags().BoolVar(&reportNotify, "notify", false, "also hand the report to the notifier")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Assemble the discrepancy report for a cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		cycleID := reportCycleID
		if cycleID == "" {
			if cycleID, err = a.recRepo.LatestCycleID(); err != nil {
				return err
			}
		}

		pairList, err := a.pairRepo.List(a.recRepo, repository.PairFilter{CycleID: cycleID})
		if err != nil {
			return err
		}
		approvals, err := a.remRepo.ListApprovals()
		if err != nil {
			return err
		}

		rep := report.Build(pairList, approvals)
		if reportNotify {
			if err := a.notifier.Deliver(cmd.Context(), rep); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}
