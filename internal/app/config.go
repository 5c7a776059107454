package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
	StoreAppwrite = "appwrite"
)

type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	TMDBBaseURL        string
	TMDBAPIToken       string
	TMDBTimeout        time.Duration
	StoreBackend       string
	MongoURI           string
	MongoDatabase      string
	MongoCollection    string
	RedisURL           string
	AppwriteEndpoint   string
	AppwriteProject    string
	AppwriteDatabase   string
	AppwriteCollection string
	AppwriteAPIKey     string
	PosterFallback     string
	SearchDebounce     time.Duration
	TrackerTimeout     time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigin  string
	OTLPEndpoint       string
	TraceSampleRate    float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		TMDBBaseURL:        getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBAPIToken:       getEnv("TMDB_API_TOKEN", getEnv("TMDB_API_KEY", "")),
		TMDBTimeout:        getEnvSeconds("TMDB_TIMEOUT_SECONDS", 0),
		StoreBackend:       normalizeStoreBackend(getEnv("STORE_BACKEND", StoreMemory)),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "moviefinder"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "search_counters"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AppwriteEndpoint:   strings.TrimRight(getEnv("APPWRITE_ENDPOINT", "https://cloud.appwrite.io/v1"), "/"),
		AppwriteProject:    getEnv("APPWRITE_PROJECT_ID", ""),
		AppwriteDatabase:   getEnv("APPWRITE_DATABASE_ID", ""),
		AppwriteCollection: getEnv("APPWRITE_COLLECTION_ID", ""),
		AppwriteAPIKey:     getEnv("APPWRITE_API_KEY", ""),
		PosterFallback:     getEnv("POSTER_FALLBACK", "./No-Poster.png"),
		SearchDebounce:     time.Duration(getEnvInt("SEARCH_DEBOUNCE_MS", 500)) * time.Millisecond,
		TrackerTimeout:     time.Duration(getEnvInt("TRACKER_WRITE_TIMEOUT_SECONDS", 5)) * time.Second,
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 100),
		CORSAllowedOrigin:  getEnv("CORS_ALLOWED_ORIGIN", "*"),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRate:    getEnvRate("OTEL_TRACE_SAMPLE_RATE", 0.1),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvSeconds reads a whole number of seconds. Zero is a valid value and
// means no limit.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvRate reads a ratio in [0,1]; zero is a valid value here.
func getEnvRate(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func normalizeStoreBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreMongo, "mongodb":
		return StoreMongo
	case StoreRedis:
		return StoreRedis
	case StoreAppwrite:
		return StoreAppwrite
	default:
		return StoreMemory
	}
}
