package main

import (
	"database/sql"
	"fmt"

	"github.com/sondrmsk/divrec/internal/approve"
	"github.com/sondrmsk/divrec/internal/config"
	"github.com/sondrmsk/divrec/internal/diagnose"
	"github.com/sondrmsk/divrec/internal/ingestion"
	"github.com/sondrmsk/divrec/internal/knowledge"
	"github.com/sondrmsk/divrec/internal/notify"
	"github.com/sondrmsk/divrec/internal/pipeline"
	"github.com/sondrmsk/divrec/internal/remediate"
	"github.com/sondrmsk/divrec/internal/repository"
)

// app holds the wired component graph for one process.
type app struct {
	cfg *config.Config
	db  *sql.DB

	recRepo  *repository.RecordRepo
	pairRepo *repository.PairRepo
	remRepo  *repository.RemediationRepo

	kb        *knowledge.Base
	ingestion *ingestion.Service
	approver  *approve.Approver
	notifier  notify.Notifier
}

// buildApp wires every component from configuration. The caller owns
// closing the database.
func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	recRepo := repository.NewRecordRepo(db)
	pairRepo := repository.NewPairRepo(db)
	remRepo := repository.NewRemediationRepo(db)
	kbRepo := repository.NewKnowledgeRepo(db)

	kb, err := knowledge.Load(kbRepo)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}

	diagnoser := diagnose.New(
		cfg.KeyFields, cfg.Tolerances, cfg.Severity,
		diagnose.WithHistory(repository.NewHistory(pairRepo), cfg.EscalateAfter, cfg.EscalationTimeout),
	)
	remediator := remediate.New(kb, cfg.TopK, cfg.MinSimilarity)
	pipe := pipeline.New(cfg, diagnoser, remediator, recRepo, pairRepo, remRepo)

	return &app{
		cfg:       cfg,
		db:        db,
		recRepo:   recRepo,
		pairRepo:  pairRepo,
		remRepo:   remRepo,
		kb:        kb,
		ingestion: ingestion.NewService(pipe),
		approver:  approve.New(db, remRepo, recRepo, pairRepo, kb),
		notifier:  notify.NewLogNotifier(),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
