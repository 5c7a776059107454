package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPosterURL(t *testing.T) {
	path := "/abc.jpg"
	empty := ""
	tests := []struct {
		name       string
		posterPath *string
		want       string
	}{
		{name: "path", posterPath: &path, want: "https://image.tmdb.org/t/p/w500/abc.jpg"},
		{name: "nil", posterPath: nil, want: DefaultPosterFallback},
		{name: "empty", posterPath: &empty, want: DefaultPosterFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PosterURL(tt.posterPath, DefaultPosterFallback); got != tt.want {
				t.Fatalf("PosterURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMovieSummaryNullPoster(t *testing.T) {
	var movie MovieSummary
	if err := json.Unmarshal([]byte(`{"id":7,"title":"X","poster_path":null}`), &movie); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if movie.PosterPath != nil {
		t.Fatalf("expected nil poster path, got %q", *movie.PosterPath)
	}
	if got := PosterURL(movie.PosterPath, "fallback.png"); got != "fallback.png" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestMovieSummaryYear(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2022-03-01", 2022},
		{"1999", 1999},
		{"", 0},
		{"20", 0},
		{"abcd-01-01", 0},
		{"-999-01-01", 0},
		{"+202-01-01", 0},
		{"20x1-01-01", 0},
		{"0999-12-31", 999},
	}
	for _, tt := range tests {
		if got := (MovieSummary{ReleaseDate: tt.date}).Year(); got != tt.want {
			t.Fatalf("Year(%q) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestClampTrendingLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultTrendingLimit},
		{-3, DefaultTrendingLimit},
		{1, 1},
		{5, 5},
		{MaxTrendingLimit, MaxTrendingLimit},
		{MaxTrendingLimit + 1, MaxTrendingLimit},
	}
	for _, tt := range tests {
		if got := ClampTrendingLimit(tt.in); got != tt.want {
			t.Fatalf("ClampTrendingLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWrapHelpers(t *testing.T) {
	if WrapFetch(nil) != nil || WrapTelemetry(nil) != nil {
		t.Fatal("wrapping nil must return nil")
	}

	cause := errors.New("connection refused")
	fetchErr := WrapFetch(cause)
	if !errors.Is(fetchErr, ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", fetchErr)
	}
	if WrapFetch(fetchErr) != fetchErr {
		t.Fatal("WrapFetch should not double wrap")
	}

	telemetryErr := WrapTelemetry(cause)
	if !errors.Is(telemetryErr, ErrTelemetryFailure) || !errors.Is(telemetryErr, cause) {
		t.Fatalf("expected both sentinel and cause, got %v", telemetryErr)
	}
	if WrapTelemetry(telemetryErr) != telemetryErr {
		t.Fatal("WrapTelemetry should not double wrap")
	}
}
