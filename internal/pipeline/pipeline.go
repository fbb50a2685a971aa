// Package pipeline drives one reconciliation cycle: normalize both
// datasets, diagnose discrepancy pairs, then fan remediation out over a
// bounded worker pool. Stages run in sequence, so a pair is always
// diagnosed before it is remediated; pairs themselves are independent
// units of work.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sondrmsk/divrec/internal/config"
	"github.com/sondrmsk/divrec/internal/diagnose"
	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/logging"
	"github.com/sondrmsk/divrec/internal/normalize"
	"github.com/sondrmsk/divrec/internal/remediate"
	"github.com/sondrmsk/divrec/internal/repository"
)

// CycleResult summarises one reconciliation cycle.
type CycleResult struct {
	CycleID    string                  `json:"cycle_id"`
	StartedAt  time.Time               `json:"started_at"`
	Pairs      int                     `json:"pairs"`
	BySeverity map[domain.Severity]int `json:"by_severity"`
	Candidates int                     `json:"candidates"`
	RowErrors  []normalize.RowError    `json:"row_errors,omitempty"`
}

// Pipeline wires the cycle stages over shared storage.
type Pipeline struct {
	cfg        *config.Config
	diagnoser  *diagnose.Diagnoser
	remediator *remediate.Remediator
	recRepo    *repository.RecordRepo
	pairRepo   *repository.PairRepo
	remRepo    *repository.RemediationRepo

	log zerolog.Logger
	now func() time.Time
}

// New creates a Pipeline.
func New(
	cfg *config.Config,
	diagnoser *diagnose.Diagnoser,
	remediator *remediate.Remediator,
	recRepo *repository.RecordRepo,
	pairRepo *repository.PairRepo,
	remRepo *repository.RemediationRepo,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		diagnoser:  diagnoser,
		remediator: remediator,
		recRepo:    recRepo,
		pairRepo:   pairRepo,
		remRepo:    remRepo,
		log:        logging.New("pipeline"),
		now:        time.Now,
	}
}

// Run executes one cycle over the two raw datasets. Cancelling the
// context aborts between pairs without corrupting state: persisted
// results stand, in-flight candidates are discarded.
func (p *Pipeline) Run(ctx context.Context, rawOrigin, rawCounterparty []normalize.RawRow) (*CycleResult, error) {
	startedAt := p.now()
	cycleID := uuid.NewString()

	origin, counterparty, rowErrs := normalize.Normalize(rawOrigin, rawCounterparty, p.cfg.FieldMap, p.cfg.KeyFields)
	for _, re := range rowErrs {
		p.log.Warn().Str("source", string(re.Source)).Int("row", re.Row).Str("detail", re.Detail).Msg("row dropped during normalization")
	}

	if err := p.recRepo.InsertCycle(cycleID, startedAt, len(rawOrigin), len(rawCounterparty), len(rowErrs)); err != nil {
		return nil, &domain.PersistenceError{Op: "insert cycle", Err: err}
	}
	if _, err := p.recRepo.BulkInsert(cycleID, origin); err != nil {
		return nil, &domain.PersistenceError{Op: "insert origin records", Err: err}
	}
	if _, err := p.recRepo.BulkInsert(cycleID, counterparty); err != nil {
		return nil, &domain.PersistenceError{Op: "insert counterparty records", Err: err}
	}

	pairs, err := p.diagnoser.Diagnose(ctx, origin, counterparty)
	if err != nil {
		return nil, err
	}

	signatures := make([]string, len(pairs))
	for i := range pairs {
		signatures[i] = diagnose.SignatureOf(&pairs[i]).String()
	}
	if _, err := p.pairRepo.BulkInsert(cycleID, pairs, signatures); err != nil {
		return nil, &domain.PersistenceError{Op: "insert pairs", Err: err}
	}

	candidates, err := p.remediatePairs(ctx, pairs)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		if _, err := p.remRepo.InsertCandidates(cycleID, candidates); err != nil {
			return nil, &domain.PersistenceError{Op: "insert candidates", Err: err}
		}
	}

	result := &CycleResult{
		CycleID:    cycleID,
		StartedAt:  startedAt,
		Pairs:      len(pairs),
		BySeverity: make(map[domain.Severity]int),
		Candidates: len(candidates),
		RowErrors:  rowErrs,
	}
	for i := range pairs {
		result.BySeverity[pairs[i].Severity]++
	}

	p.log.Info().
		Str("cycle_id", cycleID).
		Int("pairs", result.Pairs).
		Int("candidates", result.Candidates).
		Int("row_errors", len(rowErrs)).
		Dur("elapsed", p.now().Sub(startedAt)).
		Msg("cycle complete")

	return result, nil
}

// remediatePairs runs the remediator over every actionable pair with a
// bounded worker pool. Pairs whose discrepancy is already decided are
// skipped: a discrepancy is resolved at most once.
func (p *Pipeline) remediatePairs(ctx context.Context, pairs []domain.DiscrepancyPair) ([]domain.RemediationCandidate, error) {
	var mu sync.Mutex
	var candidates []domain.RemediationCandidate

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i := range pairs {
		pair := &pairs[i]
		if !pair.Severity.AtLeast(domain.SeverityMedium) {
			continue
		}

		decided, err := p.remRepo.HasDecision(pair.RecordID)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "check decision", Err: err}
		}
		if decided {
			continue
		}

		g.Go(func() error {
			cands, err := p.remediator.Remediate(ctx, pair)
			if err != nil {
				return err
			}
			mu.Lock()
			candidates = append(candidates, cands...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Workers finish in arbitrary order; sort for stable persistence.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DiscrepancyRef != candidates[j].DiscrepancyRef {
			return candidates[i].DiscrepancyRef < candidates[j].DiscrepancyRef
		}
		return candidates[i].Scope < candidates[j].Scope
	})
	return candidates, nil
}
