package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the match service needs from the environment so
// main stays lean.
type Config struct {
	Addr string

	// RecordStoreURL is the base URL of the external clinical record store.
	RecordStoreURL string
	// MatcherURL is the base URL of the similarity-matching engine.
	MatcherURL string

	// AuditDatabaseURL, when set, mirrors audit entries into Postgres in
	// addition to the record store.
	AuditDatabaseURL string

	Redis RedisConfig

	Systems Systems

	RequestTimeout time.Duration
}

// RedisConfig tunes the optional read-through cache in front of the record
// store. An empty URL disables caching entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TTL          time.Duration
}

// Systems holds the namespace URIs stamped onto tags and broken-match
// markers. They identify which authority issued a given annotation.
type Systems struct {
	MatchIssues       string
	HumanAdjudication string
	ClientID          string
	InternalID        string
	BrokenMatch       string
	GoldenRecord      string
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	base := getenv("REGISTRY_BASE_URI", "http://linkage.example/registry")

	return Config{
		Addr:             getenv("LINKAGE_ADDR", ":8080"),
		RecordStoreURL:   getenv("RECORD_STORE_URL", "http://localhost:8081/fhir"),
		MatcherURL:       getenv("MATCHER_URL", "http://localhost:8082"),
		AuditDatabaseURL: os.Getenv("AUDIT_DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getint("REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getduration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TTL:          getduration("REDIS_CACHE_TTL", 5*time.Minute),
		},
		Systems: Systems{
			MatchIssues:       base + "/matchIssues",
			HumanAdjudication: base + "/humanAdjudication",
			ClientID:          base + "/clientid",
			InternalID:        getenv("INTERNAL_ID_URI", base+"/internalid"),
			BrokenMatch:       getenv("BROKEN_MATCH_URI", base+"/brokenMatch"),
			GoldenRecord:      base + "/goldenRecord",
		},
		RequestTimeout: getduration("REQUEST_TIMEOUT", 30*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
