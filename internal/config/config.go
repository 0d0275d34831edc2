package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/pkg/password"
)

const (
	DriverDynamo   = "dynamo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	NotifierSMTP = "smtp"
	NotifierSNS  = "sns"
	NotifierLog  = "log"
)

// Config holds all runtime configuration loaded from environment variables.
// It is built once at startup and never mutated afterwards.
type Config struct {
	AppName   string
	AppPort   string
	AppEnv    string
	LogLevel  string
	LogFormat string

	StoreDriver      string
	DatabaseURL      string
	SQLitePath       string
	DBConnectRetries int

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenSecret string
	RefreshTokenExpiry time.Duration
	TokenIssuer        string
	SecretTokenExpiry  time.Duration
	BcryptCost         int

	Notifier         string
	NotifyTimeout    time.Duration
	VerifyEmailURL   string
	PasswordResetURL string
	SMTPHost         string
	SMTPPort         string
	SMTPFrom         string
	SMTPUsername     string
	SMTPPassword     string
	SNSRegion        string
	SNSTopicARN      string

	AllowedOrigins []string // CORS allowed origins
	CookieSecure   bool
}

// DynamoTables holds the DynamoDB table names.
type DynamoTables struct {
	Accounts   string
	Identities string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	env := getEnv("APP_ENV", "development")
	return &Config{
		AppName:   getEnv("APP_NAME", "authd"),
		AppPort:   getEnv("APP_PORT", "8080"),
		AppEnv:    env,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverDynamo)),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SQLitePath:       getEnv("SQLITE_PATH", "file:authd.db"),
		DBConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:   getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			Identities: getEnv("DYNAMO_TABLE_IDENTITIES", "account_identities"),
		},

		AccessTokenSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
		AccessTokenExpiry:  getEnvDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
		RefreshTokenExpiry: getEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		TokenIssuer:        getEnv("TOKEN_ISSUER", "authd"),
		SecretTokenExpiry:  getEnvDuration("SECRET_TOKEN_EXPIRY", 10*time.Minute),
		BcryptCost:         getEnvInt("BCRYPT_COST", password.MinCost),

		Notifier:         strings.ToLower(getEnv("NOTIFIER", NotifierLog)),
		NotifyTimeout:    getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		VerifyEmailURL:   getEnv("VERIFY_EMAIL_URL", "http://localhost:8080/v1/auth/verify-email"),
		PasswordResetURL: getEnv("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
		SMTPHost:         getEnv("SMTP_HOST", "localhost"),
		SMTPPort:         getEnv("SMTP_PORT", "1025"),
		SMTPFrom:         getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SNSRegion:        getEnv("SNS_REGION", getEnv("AWS_REGION", "us-east-1")),
		SNSTopicARN:      getEnv("SNS_TOPIC_ARN", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		CookieSecure:   getEnvBool("COOKIE_SECURE", env == "production"),
	}
}

// Validate reports every misconfiguration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.AccessTokenSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required"))
	}
	if c.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET is required"))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 || c.SecretTokenExpiry <= 0 {
		errs = append(errs, errors.New("token expiries must be positive"))
	}
	if c.BcryptCost < password.MinCost || c.BcryptCost > password.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", password.MinCost, password.MaxCost))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT must be positive"))
	}
	switch c.StoreDriver {
	case DriverDynamo, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.Notifier {
	case NotifierSMTP, NotifierLog:
	case NotifierSNS:
		if c.SNSTopicARN == "" {
			errs = append(errs, errors.New("SNS_TOPIC_ARN is required for the sns notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFIER %q", c.Notifier))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15m", "168h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
