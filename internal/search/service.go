package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Suggest returns autocomplete candidates for a partial title.
func (s *Service) Suggest(prefix, department string, limit int) []string {
	if s.meili != nil && s.meili.Healthy() {
		titles, err := s.meili.Suggest(prefix, department, limit)
		if err == nil {
			return titles
		}
		log.Printf("search: meilisearch suggest error, falling back to pgfts: %v", err)
	}

	titles, err := s.pgfts.Suggest(prefix, department, limit)
	if err != nil {
		log.Printf("search: pgfts suggest error: %v", err)
		return nil
	}
	return titles
}

// IndexTitle pushes one accepted title into Meilisearch, fire and forget.
func (s *Service) IndexTitle(doc TitleDoc) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTitle(doc); err != nil {
			log.Printf("search: index title %s: %v", doc.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes every title record into Meilisearch. Called on
// startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	docs, err := s.pgfts.LoadAllTitles(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(docs) == 0 {
		return
	}
	if err := s.meili.IndexTitles(docs); err != nil {
		log.Printf("search: reindex titles: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
