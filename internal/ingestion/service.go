// Package ingestion turns the delivered dividend booking files into raw
// rows and hands them to the pipeline. Acquisition cadence and transport
// are outside the core; whatever arrives only has to be representable as
// field-name to value rows.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/logging"
	"github.com/sondrmsk/divrec/internal/pipeline"
)

// Service runs reconciliation cycles from delivered file pairs.
type Service struct {
	pipeline *pipeline.Pipeline
	log      zerolog.Logger
}

// NewService creates an ingestion service over the pipeline.
func NewService(p *pipeline.Pipeline) *Service {
	return &Service{
		pipeline: p,
		log:      logging.New("ingestion"),
	}
}

// IngestPair parses the origin ledger file and the counterparty file and
// runs one reconciliation cycle over them.
func (s *Service) IngestPair(ctx context.Context, originCSV, counterpartyCSV []byte) (*pipeline.CycleResult, error) {
	originRows, err := ReadCSV(originCSV)
	if err != nil {
		return nil, fmt.Errorf("parse origin file: %w", err)
	}
	counterRows, err := ReadCSV(counterpartyCSV)
	if err != nil {
		return nil, fmt.Errorf("parse counterparty file: %w", err)
	}

	s.log.Info().
		Int("origin_rows", len(originRows)).
		Int("counterparty_rows", len(counterRows)).
		Str("origin_hash", shortHash(originCSV)).
		Str("counterparty_hash", shortHash(counterpartyCSV)).
		Msg("files ingested")

	return s.pipeline.Run(ctx, originRows, counterRows)
}

// shortHash identifies a delivered file in the logs.
func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:6])
}
