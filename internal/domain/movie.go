package domain

import "strconv"

const (
	PosterBaseURL         = "https://image.tmdb.org/t/p/w500"
	DefaultPosterFallback = "./No-Poster.png"
)

type MovieSummary struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	PosterPath       *string `json:"poster_path"`
	Overview         string  `json:"overview,omitempty"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty"`
}

// PosterURL builds the full w500 image URL for posterPath, or returns
// fallback when the movie has no poster.
func PosterURL(posterPath *string, fallback string) string {
	if posterPath == nil || *posterPath == "" {
		return fallback
	}
	return PosterBaseURL + *posterPath
}

// Year returns the release year, or 0 when the date is missing or does not
// start with a four digit year.
func (m MovieSummary) Year() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	prefix := m.ReleaseDate[:4]
	if prefix[0] == '+' || prefix[0] == '-' {
		return 0
	}
	year, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return year
}
