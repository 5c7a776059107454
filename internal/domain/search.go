package domain

type SearchState string

const (
	SearchStateOK        SearchState = "ok"
	SearchStateNoResults SearchState = "no_results"
)

const (
	NoResultsMessage    = "No movies found."
	FetchFailureMessage = "Failed to fetch movies. Please try again later."
)

type SearchResult struct {
	Query   string        `json:"query"`
	State   SearchState   `json:"state"`
	Message string        `json:"message,omitempty"`
	Items   []MovieResult `json:"items"`
}

// MovieResult is a MovieSummary with its poster already resolved for display.
type MovieResult struct {
	MovieSummary
	PosterURL string `json:"posterUrl"`
	Year      int    `json:"year,omitempty"`
}
