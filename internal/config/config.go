package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	ClientURL   string `json:"client_url"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	// Proxies allowed to set X-Forwarded-For; empty trusts none
	TrustedProxies []string `json:"trusted_proxies"`

	// Storage backend: "mongo" or "memory"
	StorageBackend string `json:"storage_backend"`

	// MongoDB configuration
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`

	// Collection names
	VerificationCollection string `json:"mongo_verification_collection"`
	UsersCollection        string `json:"mongo_users_collection"`
	AuditLogsCollection    string `json:"mongo_audit_logs_collection"`

	// Redis configuration
	RedisEnabled  bool   `json:"redis_enabled"`
	RedisURI      string `json:"redis_uri"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Email verification configuration
	VerificationTTL         time.Duration `json:"verification_ttl"`
	VerificationMaxAttempts int           `json:"verification_max_attempts"`
	ReaperSchedule          string        `json:"reaper_schedule"`

	// Email delivery configuration
	EmailService   string `json:"email_service"`
	EmailFrom      string `json:"email_from"`
	EmailFromName  string `json:"email_from_name"`
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"-"`
	SMTPTLS        bool   `json:"smtp_tls"`
	SendGridAPIKey string `json:"-"`

	// Dispatch queue configuration
	DispatchWorkerCount int `json:"dispatch_worker_count"`
	DispatchQueueSize   int `json:"dispatch_queue_size"`

	// Authentication configuration
	JWTSecret string `json:"-"`
	AdminPlan string `json:"admin_plan"`

	// Rate limiting configuration
	RateLimitSendMax      int           `json:"rate_limit_send_max"`
	RateLimitSendWindow   time.Duration `json:"rate_limit_send_window"`
	RateLimitVerifyMax    int           `json:"rate_limit_verify_max"`
	RateLimitVerifyWindow time.Duration `json:"rate_limit_verify_window"`
	RateLimitGlobalMax    int           `json:"rate_limit_global_max"`
	RateLimitGlobalWindow time.Duration `json:"rate_limit_global_window"`

	// Audit configuration
	AuditLogsEnabled bool `json:"audit_logs_enabled"`
	AuditWorkerCount int  `json:"audit_worker_count"`
	AuditBufferSize  int  `json:"audit_buffer_size"`

	// Tracing configuration
	TracingEnabled     bool    `json:"tracing_enabled"`
	TracingEndpoint    string  `json:"tracing_endpoint"`
	TracingSampleRatio float64 `json:"tracing_sample_ratio"`
}

var (
	AppConfig *Config
)

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c != nil && c.Environment == "development"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	port, err := getEnvAsIntOrDefault("PORT", 8080)
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	redisDB, err := getEnvAsIntOrDefault("REDIS_DB", 0)
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	redisEnabled, err := getEnvAsBoolOrDefault("REDIS_ENABLED", true)
	if err != nil {
		return fmt.Errorf("invalid REDIS_ENABLED: %w", err)
	}

	verificationTTL, err := getEnvAsDurationOrDefault("VERIFICATION_TTL", 15*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid VERIFICATION_TTL: %w", err)
	}
	if verificationTTL <= 0 {
		return fmt.Errorf("VERIFICATION_TTL must be positive")
	}

	maxAttempts, err := getEnvAsIntOrDefault("VERIFICATION_MAX_ATTEMPTS", 5)
	if err != nil {
		return fmt.Errorf("invalid VERIFICATION_MAX_ATTEMPTS: %w", err)
	}
	if maxAttempts < 1 {
		return fmt.Errorf("VERIFICATION_MAX_ATTEMPTS must be at least 1")
	}

	storageBackend := getEnvOrDefault("STORAGE_BACKEND", "mongo")
	if storageBackend != "mongo" && storageBackend != "memory" {
		return fmt.Errorf("invalid STORAGE_BACKEND %q: expected mongo or memory", storageBackend)
	}

	smtpPort, err := getEnvAsIntOrDefault("SMTP_PORT", 587)
	if err != nil {
		return fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	smtpTLS, err := getEnvAsBoolOrDefault("SMTP_TLS", true)
	if err != nil {
		return fmt.Errorf("invalid SMTP_TLS: %w", err)
	}

	dispatchWorkers, err := getEnvAsIntOrDefault("DISPATCH_WORKER_COUNT", 4)
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_WORKER_COUNT: %w", err)
	}

	dispatchQueueSize, err := getEnvAsIntOrDefault("DISPATCH_QUEUE_SIZE", 256)
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_QUEUE_SIZE: %w", err)
	}

	sendMax, err := getEnvAsIntOrDefault("RATE_LIMIT_SEND_MAX", 3)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_SEND_MAX: %w", err)
	}
	sendWindow, err := getEnvAsDurationOrDefault("RATE_LIMIT_SEND_WINDOW", 5*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_SEND_WINDOW: %w", err)
	}
	verifyMax, err := getEnvAsIntOrDefault("RATE_LIMIT_VERIFY_MAX", 5)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_VERIFY_MAX: %w", err)
	}
	verifyWindow, err := getEnvAsDurationOrDefault("RATE_LIMIT_VERIFY_WINDOW", 15*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_VERIFY_WINDOW: %w", err)
	}
	globalMax, err := getEnvAsIntOrDefault("RATE_LIMIT_GLOBAL_MAX", 100)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_GLOBAL_MAX: %w", err)
	}
	globalWindow, err := getEnvAsDurationOrDefault("RATE_LIMIT_GLOBAL_WINDOW", 15*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_GLOBAL_WINDOW: %w", err)
	}

	auditEnabled, err := getEnvAsBoolOrDefault("AUDIT_LOGS_ENABLED", true)
	if err != nil {
		return fmt.Errorf("invalid AUDIT_LOGS_ENABLED: %w", err)
	}
	auditWorkers, err := getEnvAsIntOrDefault("AUDIT_WORKER_COUNT", 2)
	if err != nil {
		return fmt.Errorf("invalid AUDIT_WORKER_COUNT: %w", err)
	}
	auditBuffer, err := getEnvAsIntOrDefault("AUDIT_BUFFER_SIZE", 1000)
	if err != nil {
		return fmt.Errorf("invalid AUDIT_BUFFER_SIZE: %w", err)
	}

	tracingEnabled, err := getEnvAsBoolOrDefault("TRACING_ENABLED", false)
	if err != nil {
		return fmt.Errorf("invalid TRACING_ENABLED: %w", err)
	}

	sampleRatio, err := getEnvAsFloatOrDefault("TRACING_SAMPLE_RATIO", 1)
	if err != nil {
		return fmt.Errorf("invalid TRACING_SAMPLE_RATIO: %w", err)
	}
	if sampleRatio < 0 || sampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}

	environment := getEnvOrDefault("ENVIRONMENT", "development")

	emailService := strings.ToLower(getEnvOrDefault("EMAIL_SERVICE", "log"))
	sendGridKey := os.Getenv("SENDGRID_API_KEY")
	smtpHost := getEnvOrDefault("SMTP_HOST", "")
	switch emailService {
	case "log":
		if environment == "production" {
			return fmt.Errorf("EMAIL_SERVICE=log is not allowed in production")
		}
	case "gmail":
		if smtpHost == "" {
			smtpHost = "smtp.gmail.com"
		}
	case "smtp":
		if smtpHost == "" {
			return fmt.Errorf("SMTP_HOST environment variable is required when EMAIL_SERVICE=smtp")
		}
	case "sendgrid":
		if sendGridKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY environment variable is required when EMAIL_SERVICE=sendgrid")
		}
	default:
		return fmt.Errorf("invalid EMAIL_SERVICE %q", emailService)
	}

	clientURL := strings.TrimRight(getEnvOrDefault("CLIENT_URL", "http://localhost:5173"), "/")

	corsOrigins := parseCommaSeparatedList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{clientURL}
	}

	AppConfig = &Config{
		// Server configuration
		Port:               port,
		Environment:        environment,
		ClientURL:          clientURL,
		CORSAllowedOrigins: corsOrigins,
		TrustedProxies:     parseCommaSeparatedList(os.Getenv("TRUSTED_PROXIES")),
		StorageBackend:     storageBackend,

		// MongoDB configuration
		MongoURI:      getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGODB_DATABASE", "nextmind"),

		// Collection names
		VerificationCollection: getEnvOrDefault("MONGODB_VERIFICATION_COLLECTION", "email_verifications"),
		UsersCollection:        getEnvOrDefault("MONGODB_USERS_COLLECTION", "users"),
		AuditLogsCollection:    getEnvOrDefault("MONGODB_AUDIT_LOGS_COLLECTION", "audit_logs"),

		// Redis configuration
		RedisEnabled:  redisEnabled,
		RedisURI:      getEnvOrDefault("REDIS_URI", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		// Email verification configuration
		VerificationTTL:         verificationTTL,
		VerificationMaxAttempts: maxAttempts,
		ReaperSchedule:          getEnvOrDefault("REAPER_SCHEDULE", "@every 5m"),

		// Email delivery configuration
		EmailService:   emailService,
		EmailFrom:      getEnvOrDefault("EMAIL_FROM", "noreply@nextmind-ai.com"),
		EmailFromName:  getEnvOrDefault("EMAIL_FROM_NAME", "NextMind AI"),
		SMTPHost:       smtpHost,
		SMTPPort:       smtpPort,
		SMTPUsername:   getEnvOrDefault("SMTP_USERNAME", ""),
		SMTPPassword:   getEnvOrDefault("SMTP_PASSWORD", ""),
		SMTPTLS:        smtpTLS,
		SendGridAPIKey: sendGridKey,

		DispatchWorkerCount: dispatchWorkers,
		DispatchQueueSize:   dispatchQueueSize,

		// Authentication configuration
		JWTSecret: getEnvOrDefault("JWT_SECRET", "your-secret-key"),
		AdminPlan: getEnvOrDefault("ADMIN_PLAN", "enterprise"),

		// Rate limiting configuration
		RateLimitSendMax:      sendMax,
		RateLimitSendWindow:   sendWindow,
		RateLimitVerifyMax:    verifyMax,
		RateLimitVerifyWindow: verifyWindow,
		RateLimitGlobalMax:    globalMax,
		RateLimitGlobalWindow: globalWindow,

		// Audit configuration
		AuditLogsEnabled: auditEnabled,
		AuditWorkerCount: auditWorkers,
		AuditBufferSize:  auditBuffer,

		// Tracing configuration
		TracingEnabled:     tracingEnabled,
		TracingEndpoint:    getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317"),
		TracingSampleRatio: sampleRatio,
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault parses an integer environment variable
func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

// getEnvAsDurationOrDefault parses a duration environment variable
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}

// getEnvAsBoolOrDefault parses a boolean environment variable
func getEnvAsFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(value)
}

// parseCommaSeparatedList splits a comma separated value, dropping empty items
func parseCommaSeparatedList(value string) []string {
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
