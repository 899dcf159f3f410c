package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxTitles = "projectgate_titles"

// Meili indexes and searches titles via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the titles index.
// The client starts unhealthy if the initial connection fails; the health
// loop keeps probing so a late-starting Meilisearch is picked up.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxTitles,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxTitles, err)
	}

	index := m.client.Index(idxTitles)
	filterable := []interface{}{"department", "submittedBy"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxTitles, err)
	}
	searchable := []string{"title"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxTitles, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the titles index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	request := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Department != "" {
		request.Filter = []string{fmt.Sprintf("department = %q", q.Department)}
	}

	resp, err := m.client.Index(idxTitles).Search(q.Text, request)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

// Suggest returns up to limit title strings matching a prefix, scoped to a
// department.
func (m *Meili) Suggest(prefix, department string, limit int) ([]string, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 8
	}

	request := &meili.SearchRequest{Limit: int64(limit)}
	if department != "" {
		request.Filter = []string{fmt.Sprintf("department = %q", department)}
	}

	resp, err := m.client.Index(idxTitles).Search(prefix, request)
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch suggest: %w", err)
	}

	titles := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if title := decodeString(hit, "title"); title != "" {
			titles = append(titles, title)
		}
	}
	return titles, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		Title:       decodeString(hit, "title"),
		Snippet:     decodeFormattedString(hit, "title"),
		SubmittedBy: decodeString(hit, "submittedBy"),
		Department:  decodeString(hit, "department"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

// IndexTitle adds or updates one title in the index.
func (m *Meili) IndexTitle(doc TitleDoc) error {
	_, err := m.client.Index(idxTitles).AddDocuments([]TitleDoc{doc}, nil)
	return err
}

// IndexTitles bulk-indexes titles, used on reindex.
func (m *Meili) IndexTitles(docs []TitleDoc) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTitles).AddDocuments(docs, nil)
	return err
}
