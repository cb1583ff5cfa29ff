// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	CORSOrigins []string

	// Database
	DatabaseURL    string
	TursoURL       string
	TursoAuthToken string

	// Authentication
	JWTSecret string

	// Apify actors
	ApifyToken          string
	ApifyBaseURL        string
	ApifySearchActor    string
	ApifyTrafficActor   string
	ApifyTechActor      string
	ApifyProductActor   string
	ApifyRatePerSecond  float64
	ApifyResultsPerPage int

	// LLM (OpenAI-compatible chat completions)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Search
	SearchPages         int
	ExpandPages         int
	SearchCountryCode   string
	SearchLanguageCode  string
	SearchQueryTemplate string

	// Qualification
	MinDomestic         int64
	MinAbroad           int64
	MaxDomestic         int64
	ConversionRate      float64
	HomeCountry         string
	HomeCountryNameHint string

	// Filters
	MarketplaceDenylist  []string
	SupportedPlatforms   []string
	PlatformCheckEnabled bool
	ProxyHosts           []string // host fragments whose /website/<target> path is unwrapped

	// Seller phone policy
	PhoneContains []string
	PhonePrefixes []string
	PhonePattern  string

	// Retry and caching
	TrafficRetryAttempts int
	TrafficRetryDelay    time.Duration
	AnalysisCacheSize    int
	AnalysisCacheMaxAge  time.Duration
	RecentRunWindow      time.Duration

	// Contact crawling
	ContactMaxPages      int
	ContactMaxDepth      int
	CrawlExcludePatterns []string
	CrawlUserAgent       string

	// Amazon
	AmazonMaxProducts int

	// Worker
	WorkerConcurrency         int
	WorkerQueueSize           int
	ExpandConcurrency         int
	WorkerShutdownGracePeriod time.Duration

	// Idle shutdown for scale-to-zero deployments (0 = disabled)
	IdleTimeout time.Duration

	// Object Storage (Tigris/S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string
	LogFiltersKey    string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		DatabaseURL:    getEnv("DATABASE_URL", "file:leadscout.db?_journal=WAL&_timeout=5000"),
		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		ApifyToken:          getEnv("APIFY_TOKEN", ""),
		ApifyBaseURL:        getEnv("APIFY_BASE_URL", "https://api.apify.com/v2"),
		ApifySearchActor:    getEnv("APIFY_SEARCH_ACTOR", "apify~google-search-scraper"),
		ApifyTrafficActor:   getEnv("APIFY_TRAFFIC_ACTOR", "curious_coder~similarweb-scraper"),
		ApifyTechActor:      getEnv("APIFY_TECH_ACTOR", "tugkan~wappalyzer"),
		ApifyProductActor:   getEnv("APIFY_PRODUCT_ACTOR", "junglee~amazon-crawler"),
		ApifyRatePerSecond:  getEnvFloat("APIFY_RATE_PER_SECOND", 2),
		ApifyResultsPerPage: getEnvInt("APIFY_RESULTS_PER_PAGE", 10),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1/chat/completions"),
		LLMAPIKey:  getEnvWithFallback("LLM_API_KEY", "OPENROUTER_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "google/gemini-2.5-flash"),

		SearchPages:         getEnvInt("SEARCH_PAGES", 3),
		ExpandPages:         getEnvInt("EXPAND_PAGES", 3),
		SearchCountryCode:   getEnv("SEARCH_COUNTRY_CODE", "it"),
		SearchLanguageCode:  getEnv("SEARCH_LANGUAGE_CODE", "it"),
		SearchQueryTemplate: getEnv("SEARCH_QUERY_TEMPLATE", "%s shop online"),

		MinDomestic:         int64(getEnvInt("MIN_DOMESTIC_SHIPMENTS", 100)),
		MinAbroad:           int64(getEnvInt("MIN_ABROAD_SHIPMENTS", 30)),
		MaxDomestic:         int64(getEnvInt("MAX_DOMESTIC_SHIPMENTS", 10000)),
		ConversionRate:      getEnvFloat("CONVERSION_RATE", 0.02),
		HomeCountry:         strings.ToUpper(getEnv("HOME_COUNTRY", "IT")),
		HomeCountryNameHint: strings.ToLower(getEnv("HOME_COUNTRY_NAME_HINT", "ital")),

		MarketplaceDenylist:  getEnvSlice("MARKETPLACE_DENYLIST", nil),
		SupportedPlatforms:   getEnvSlice("SUPPORTED_PLATFORMS", nil),
		PlatformCheckEnabled: getEnvBool("PLATFORM_CHECK_ENABLED", true),
		ProxyHosts:           getEnvSlice("NORMALIZER_PROXY_HOSTS", []string{"similarweb.com"}),

		PhoneContains: getEnvSlice("PHONE_CONTAINS", []string{"+39"}),
		PhonePrefixes: getEnvSlice("PHONE_PREFIXES", []string{"39"}),
		PhonePattern:  getEnv("PHONE_PATTERN", `^0\d{1,3}\s?\d+`),

		TrafficRetryAttempts: getEnvInt("TRAFFIC_RETRY_ATTEMPTS", 3),
		TrafficRetryDelay:    getEnvDuration("TRAFFIC_RETRY_DELAY", 2*time.Second),
		AnalysisCacheSize:    getEnvInt("ANALYSIS_CACHE_SIZE", 1024),
		AnalysisCacheMaxAge:  getEnvDuration("ANALYSIS_CACHE_MAX_AGE", 30*24*time.Hour),
		RecentRunWindow:      getEnvDuration("RECENT_RUN_WINDOW", 24*time.Hour),

		ContactMaxPages:      getEnvInt("CONTACT_MAX_PAGES", 5),
		ContactMaxDepth:      getEnvInt("CONTACT_MAX_DEPTH", 1),
		CrawlExcludePatterns: getEnvSlice("CRAWL_EXCLUDE_PATTERNS", nil),
		CrawlUserAgent:       getEnv("CRAWL_USER_AGENT", ""),

		AmazonMaxProducts: getEnvInt("AMAZON_MAX_PRODUCTS", 50),

		WorkerConcurrency:         getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerQueueSize:           getEnvInt("WORKER_QUEUE_SIZE", 256),
		ExpandConcurrency:         getEnvInt("EXPAND_CONCURRENCY", 3),
		WorkerShutdownGracePeriod: getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 2*time.Minute),
		IdleTimeout:               getEnvDuration("IDLE_TIMEOUT", 0),

		// BUCKET_NAME is set automatically by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		LogFiltersKey:    getEnv("LOG_FILTERS_KEY", "config/logfilters.json"),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MinDomestic < 0 || c.MinAbroad < 0 || c.MaxDomestic < 0 {
		return fmt.Errorf("shipment thresholds must not be negative")
	}
	if c.MaxDomestic < c.MinDomestic {
		return fmt.Errorf("MAX_DOMESTIC_SHIPMENTS (%d) is below MIN_DOMESTIC_SHIPMENTS (%d)", c.MaxDomestic, c.MinDomestic)
	}
	if c.ConversionRate <= 0 || c.ConversionRate > 1 {
		return fmt.Errorf("CONVERSION_RATE must be in (0, 1], got %v", c.ConversionRate)
	}
	if c.SearchPages < 1 || c.ExpandPages < 1 {
		return fmt.Errorf("SEARCH_PAGES and EXPAND_PAGES must be at least 1")
	}
	if c.TrafficRetryAttempts < 1 {
		return fmt.Errorf("TRAFFIC_RETRY_ATTEMPTS must be at least 1")
	}
	if !strings.Contains(c.SearchQueryTemplate, "%s") {
		return fmt.Errorf("SEARCH_QUERY_TEMPLATE must contain %%s")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvSlice splits a comma-separated value, trimming blanks.
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
