// Package search provides keyword search and autocomplete over the accepted
// title corpus, backed by Meilisearch with a Postgres full-text fallback.
package search

// TitleDoc is the data indexed per accepted title.
type TitleDoc struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SubmittedBy string `json:"submittedBy"`
	Department  string `json:"department"`
	SubmittedAt int64  `json:"submittedAt"`
}

// Query describes a title search request.
type Query struct {
	Text       string
	Department string // empty = all departments
	Limit      int
	Offset     int
}

// Result is a single title hit.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet,omitempty"`
	SubmittedBy string `json:"submittedBy"`
	Department  string `json:"department"`
}

// Response is the envelope returned by the title search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a title search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Suggest(prefix, department string, limit int) ([]string, error)
	Healthy() bool
}
