package search

import (
	"context"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	index    Indexer
	fallback Searcher
	logger   *zap.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Indexer, fallback Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, fallback: fallback, logger: logger.Named("search")}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("index search failed, falling back to pgfts", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexRun pushes a run's rows to the index in the background.
func (s *Service) IndexRun(runID string, records []RecordDoc) {
	if !s.indexReady() || len(records) == 0 {
		return
	}
	go func() {
		if err := s.index.IndexRecords(records); err != nil {
			s.logger.Warn("index run", zap.String("run", runID), zap.Error(err))
		}
	}()
}

// DeleteRun removes a run from the index in the background.
func (s *Service) DeleteRun(runID string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.DeleteRun(runID); err != nil {
			s.logger.Warn("delete run from index", zap.String("run", runID), zap.Error(err))
		}
	}()
}

// Reindex replaces the index content with records synchronously. Called at
// startup so rows stored while Meilisearch was down become searchable.
func (s *Service) Reindex(records []RecordDoc) error {
	if !s.indexReady() {
		return nil
	}
	return s.index.IndexRecords(records)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
