package search

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type indexer interface {
	IndexProjects(projects []ProjectRecord) error
	IndexTasks(tasks []TaskRecord) error
}

type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]ProjectRecord, []TaskRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  Searcher
	index    indexer
	fallback Searcher
	loader   recordLoader
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{fallback: pgfts, loader: pgfts}
	if meili != nil {
		s.primary = meili
		s.index = meili
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if len(q.ProjectIDs) == 0 {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		logrus.WithError(err).Warn("search: meilisearch error, falling back to pgfts")
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		logrus.WithError(err).Error("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// ReindexAllFromPG reads every project and task from PostgreSQL and pushes them to Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) error {
	if s.index == nil || s.primary == nil || !s.primary.Healthy() || s.loader == nil {
		return nil
	}
	projects, tasks, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return err
	}
	if err := s.index.IndexProjects(projects); err != nil {
		return err
	}
	if err := s.index.IndexTasks(tasks); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"projects": len(projects), "tasks": len(tasks)}).Info("search: reindexed")
	return nil
}

// ReindexEvery reruns ReindexAllFromPG on a fixed interval until ctx is done.
// Projects and tasks are written outside this API, so this bounds how stale
// Meilisearch can get. A non-positive interval disables the loop.
func (s *Service) ReindexEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ReindexAllFromPG(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Warn("search: periodic reindex failed")
			}
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
