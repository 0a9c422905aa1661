package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	// Mail provider
	MailProvider       string
	GoogleClientID     string
	GoogleClientSecret string
	CredentialStore    string
	CredentialFile     string
	KeyringDir         string
	KeyringPassword    string
	GmailLabel         string
	GmailAddress       string
	IMAPHost           string
	IMAPPort           string
	IMAPUsername       string
	IMAPPassword       string
	IMAPMailbox        string
	IMAPTLS            bool

	// Background loops
	PollInterval     time.Duration
	PollMaxBackoff   time.Duration
	SweepInterval    time.Duration
	SweepWindow      string
	SweepLimit       int
	ReminderInterval time.Duration

	// Dispatcher
	DispatchWorkers    int
	DispatchMaxRetries int
	DispatchRate       float64
	OrganizerEmail     string

	// AI
	AIProvider    string
	GeminiApiKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string

	// Push notifications and alerts
	GoogleProjectID          string
	GooglePubSubTopic        string
	GooglePubSubSubscription string
	GoogleCredentials        string
	FirebaseCredentials      string
	OperatorFCMTokens        []string

	APIJWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "scheduler.db"),

		MailProvider:       getEnv("MAIL_PROVIDER", "gmail"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		CredentialStore:    getEnv("CREDENTIAL_STORE", "file"),
		CredentialFile:     getEnv("CREDENTIAL_FILE", "token.json"),
		KeyringDir:         getEnv("KEYRING_DIR", ".keyring"),
		KeyringPassword:    getEnv("KEYRING_PASSWORD", ""),
		GmailLabel:         getEnv("GMAIL_LABEL", "INBOX"),
		GmailAddress:       getEnv("GMAIL_ADDRESS", ""),
		IMAPHost:           getEnv("IMAP_HOST", ""),
		IMAPPort:           getEnv("IMAP_PORT", "993"),
		IMAPUsername:       getEnv("IMAP_USERNAME", ""),
		IMAPPassword:       getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:        getEnv("IMAP_MAILBOX", "INBOX"),
		IMAPTLS:            getBool("IMAP_TLS", true),

		PollInterval:     getDuration("POLL_INTERVAL", 10*time.Second),
		PollMaxBackoff:   getDuration("POLL_MAX_BACKOFF", 5*time.Minute),
		SweepInterval:    getDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepWindow:      getEnv("SWEEP_WINDOW", "newer_than:1d"),
		SweepLimit:       getInt("SWEEP_LIMIT", 50),
		ReminderInterval: getDuration("REMINDER_INTERVAL", time.Minute),

		DispatchWorkers:    getInt("DISPATCH_WORKERS", 4),
		DispatchMaxRetries: getInt("DISPATCH_MAX_RETRIES", 1),
		DispatchRate:       getFloat("DISPATCH_RATE", 2),
		OrganizerEmail:     getEnv("ORGANIZER_EMAIL", ""),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiApiKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		GoogleProjectID:          getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:        getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GooglePubSubSubscription: getEnv("GOOGLE_PUBSUB_SUBSCRIPTION", "gmail-updates-sub"),
		GoogleCredentials:        getEnv("GOOGLE_CREDENTIALS", ""),
		FirebaseCredentials:      getEnv("FIREBASE_CREDENTIALS", ""),
		OperatorFCMTokens:        getList("OPERATOR_FCM_TOKENS"),

		APIJWTSecret: getEnv("API_JWT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getList splits a comma separated variable, dropping empty entries
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
