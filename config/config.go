// Package config declares the service configuration, bound to flags and
// environment variables through go-flags struct tags.
package config

import (
	"os"
	"strings"
	"time"
)

// Database configures the durable store and its connection pool.
// URL selects the engine: postgres:// and postgresql:// URLs open the
// Postgres engine; anything else is treated as a SQLite database path.
type Database struct {
	URL                string `long:"url" env:"URL" default:"./data/scrycache.db" description:"Store connection string: postgres:// URL or SQLite file path"`
	MaxConnections     int    `long:"max-connections" env:"MAX_CONNECTIONS" default:"10" description:"Maximum pool connections"`
	MinConnections     int    `long:"min-connections" env:"MIN_CONNECTIONS" default:"0" description:"Minimum idle pool connections"`
	AcquireTimeoutMS   int    `long:"acquire-timeout-ms" env:"ACQUIRE_TIMEOUT_MS" default:"30000" description:"Pool acquire timeout in milliseconds"`
	IdleTimeoutSeconds int    `long:"idle-timeout-seconds" env:"IDLE_TIMEOUT_SECONDS" default:"600" description:"Idle connection timeout in seconds"`
	MaxLifetimeSeconds int    `long:"max-lifetime-seconds" env:"MAX_LIFETIME_SECONDS" default:"1800" description:"Maximum connection lifetime in seconds"`
}

// IsPostgres reports whether URL names a Postgres endpoint.
func (d Database) IsPostgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}

func (d Database) AcquireTimeout() time.Duration {
	return time.Duration(d.AcquireTimeoutMS) * time.Millisecond
}

func (d Database) IdleTimeout() time.Duration {
	return time.Duration(d.IdleTimeoutSeconds) * time.Second
}

func (d Database) MaxLifetime() time.Duration {
	return time.Duration(d.MaxLifetimeSeconds) * time.Second
}

// API configures the HTTP listener.
type API struct {
	Host string `long:"host" env:"HOST" default:"0.0.0.0" description:"Address to listen on"`
	Port int    `long:"port" env:"PORT" default:"8080" description:"Port to listen on"`
}

// Scryfall configures the upstream catalog client.
type Scryfall struct {
	APIBaseURL         string  `long:"api-base-url" env:"API_BASE_URL" default:"https://api.scryfall.com" description:"Upstream API base URL"`
	RateLimitPerSecond float64 `long:"rate-limit-per-second" env:"RATE_LIMIT_PER_SECOND" default:"10" description:"Token-bucket rate toward the upstream"`
	BulkDataType       string  `long:"bulk-data-type" env:"BULK_DATA_TYPE" default:"default_cards" description:"Bulk snapshot type to ingest"`
	CacheTTLHours      int     `long:"cache-ttl-hours" env:"CACHE_TTL_HOURS" default:"24" description:"Bulk snapshot staleness threshold in hours"`
}

// QueryCache configures the durable result-set cache.
type QueryCache struct {
	TTLHours int `long:"ttl-hours" env:"TTL_HOURS" default:"24" description:"Result-set entry TTL in hours"`
	MaxSize  int `long:"max-size" env:"MAX_SIZE" default:"10000" description:"Soft cap on cached result sets"`
}

// Redis configures the optional distributed cache tier.
type Redis struct {
	Enabled        bool   `long:"enabled" env:"ENABLED" description:"Enable the Redis cache tier"`
	URL            string `long:"url" env:"URL" default:"redis://localhost:6379" description:"Redis connection URL"`
	TTLSeconds     int    `long:"ttl-seconds" env:"TTL_SECONDS" default:"3600" description:"Default TTL for Redis entries in seconds"`
	MaxValueSizeMB int    `long:"max-value-size-mb" env:"MAX_VALUE_SIZE_MB" default:"10" description:"Values larger than this are not cached"`
}

func (r Redis) TTL() time.Duration { return time.Duration(r.TTLSeconds) * time.Second }

// Query bounds accepted search queries.
type Query struct {
	MaxLength      int `long:"max-length" env:"MAX_LENGTH" default:"1000" description:"Maximum raw query length"`
	MaxNesting     int `long:"max-nesting" env:"MAX_NESTING" default:"5" description:"Maximum AST nesting depth"`
	MaxOrClauses   int `long:"max-or-clauses" env:"MAX_OR_CLAUSES" default:"10" description:"Maximum number of OR nodes"`
	MaxResults     int `long:"max-results" env:"MAX_RESULTS" default:"1000" description:"Cap on unpaginated search results"`
	TimeoutSeconds int `long:"timeout-seconds" env:"TIMEOUT_SECONDS" default:"30" description:"Per-query execution timeout in seconds"`
}

func (q Query) Timeout() time.Duration { return time.Duration(q.TimeoutSeconds) * time.Second }

// Batch bounds the batch endpoints.
type Batch struct {
	MaxIDs      int `long:"max-ids" env:"MAX_IDS" default:"1000" description:"Maximum ids per /cards/batch request"`
	MaxNames    int `long:"max-names" env:"MAX_NAMES" default:"50" description:"Maximum names per /cards/named/batch request"`
	MaxQueries  int `long:"max-queries" env:"MAX_QUERIES" default:"10" description:"Maximum queries per /queries/batch request"`
	Parallelism int `long:"parallelism" env:"PARALLELISM" default:"4" description:"Bounded concurrency for batch items, clamped to [1,32]"`
}

// CircuitBreaker configures failure isolation around upstream calls.
type CircuitBreaker struct {
	FailureThreshold int `long:"failure-threshold" env:"FAILURE_THRESHOLD" default:"5" description:"Consecutive failures before the breaker opens"`
	SuccessThreshold int `long:"success-threshold" env:"SUCCESS_THRESHOLD" default:"2" description:"Consecutive half-open successes before the breaker closes"`
	TimeoutSeconds   int `long:"timeout-seconds" env:"TIMEOUT_SECONDS" default:"60" description:"Open-state duration before probing in seconds"`
	HalfOpenRequests int `long:"half-open-requests" env:"HALF_OPEN_REQUESTS" default:"3" description:"Concurrent probes admitted while half-open"`
}

func (c CircuitBreaker) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// BulkRefresh configures the background snapshot refresh task.
type BulkRefresh struct {
	Enabled       bool `long:"enabled" env:"ENABLED" default:"true" description:"Enable the background refresh task"`
	IntervalHours int  `long:"interval-hours" env:"INTERVAL_HOURS" default:"720" description:"Hours between refresh checks"`
}

func (b BulkRefresh) Interval() time.Duration { return time.Duration(b.IntervalHours) * time.Hour }

// Log configures handling of application log events.
type Log struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// Config is the full service configuration.
type Config struct {
	Database   Database       `group:"Database" namespace:"database" env-namespace:"DATABASE"`
	API        API            `group:"API" namespace:"api" env-namespace:"API"`
	Scryfall   Scryfall       `group:"Scryfall" namespace:"scryfall" env-namespace:"SCRYFALL"`
	QueryCache QueryCache     `group:"Query cache" namespace:"query-cache" env-namespace:"QUERY_CACHE"`
	Redis      Redis          `group:"Redis" namespace:"redis" env-namespace:"REDIS"`
	Query      Query          `group:"Query limits" namespace:"query" env-namespace:"QUERY"`
	Batch      Batch          `group:"Batch" namespace:"batch" env-namespace:"BATCH"`
	Breaker    CircuitBreaker `group:"Circuit breaker" namespace:"circuit-breaker" env-namespace:"CIRCUIT_BREAKER"`
	Refresh    BulkRefresh    `group:"Bulk refresh" namespace:"bulk-refresh" env-namespace:"BULK_REFRESH"`
	Log        Log            `group:"Logging" namespace:"log" env-namespace:"LOG"`

	InstanceID string `long:"instance-id" env:"INSTANCE_ID" description:"Identifier reported by this replica (defaults to hostname)"`
}

// Resolve fills derived defaults that cannot be expressed as struct tags.
func (c *Config) Resolve() {
	if c.InstanceID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.InstanceID = host
		} else {
			c.InstanceID = "unknown"
		}
	}
}
