package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <origin.csv> <counterparty.csv>",
	Short: "Run one reconciliation cycle over two booking files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		originData, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read origin file: %w", err)
		}
		counterData, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read counterparty file: %w", err)
		}

		result, err := a.ingestion.IngestPair(cmd.Context(), originData, counterData)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}
