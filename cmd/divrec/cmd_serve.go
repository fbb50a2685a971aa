package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/sondrmsk/divrec/internal/api"
	"github.com/sondrmsk/divrec/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		router := api.NewRouter(a.ingestion, a.approver, a.notifier, a.recRepo, a.pairRepo, a.remRepo)

		log := logging.New("serve")
		log.Info().
			Str("addr", a.cfg.ListenAddr).
			Str("db", a.cfg.DBPath).
			Int("knowledge_entries", a.kb.Len()).
			Msg("listening")

		return http.ListenAndServe(a.cfg.ListenAddr, router)
	},
}
