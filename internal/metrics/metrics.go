package metrics

import (
	"context"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"github.com/google/uuid"
)

type service struct {
	repo  Repository
	runID string
}

type noopCollector struct {
	runID string
}

func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return NewNoop(), nil
	}

	runID := uuid.NewString()
	repo, err := NewRepository(cfg, runID, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("run_id", runID).
		Msg("Metrics service initialized successfully")

	return &service{
		repo:  repo,
		runID: runID,
	}, nil
}

// NewNoop returns a collector that discards every snapshot.
func NewNoop() Collector {
	return &noopCollector{runID: uuid.NewString()}
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) RunID() string {
	return s.runID
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopCollector) Record(_ context.Context, _ *Snapshot) error {
	return nil
}

func (n *noopCollector) RunID() string {
	return n.runID
}

func (*noopCollector) Close() error {
	return nil
}
