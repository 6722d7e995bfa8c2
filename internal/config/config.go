// Package config loads service configuration from flags, environment variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// JumpCloud credentials.
type JumpCloud struct {
	APIKey  string
	BaseURL string
}

func (c JumpCloud) Configured() bool { return c.APIKey != "" }

// Google Workspace domain-wide delegation.
type Google struct {
	CredentialsFile string
	AdminEmail      string
	Customer        string
}

func (c Google) Configured() bool { return c.CredentialsFile != "" && c.AdminEmail != "" }

// Slack tokens. SCIMToken is only needed for suspension.
type Slack struct {
	BotToken  string
	SCIMToken string
}

func (c Slack) Configured() bool { return c.BotToken != "" }

// Atlassian organization admin API.
type Atlassian struct {
	OrgID  string
	APIKey string
}

func (c Atlassian) Configured() bool { return c.OrgID != "" && c.APIKey != "" }

// LDAP directory.
type LDAP struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	Filter       string
	PageSize     int
}

func (c LDAP) Configured() bool { return c.URL != "" && c.BaseDN != "" }

// Config is the full service configuration.
type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	GRPCTLSCert    string
	GRPCTLSKey     string
	GRPCReflection bool
	DatabaseDSN    string
	JWTKey         string

	Schedule       string
	BatchSize      int
	BatchDelay     time.Duration
	UpsertBatch    int
	Strict         bool
	StreamInterval time.Duration

	JumpCloud JumpCloud
	Google    Google
	Slack     Slack
	Atlassian Atlassian
	LDAP      LDAP
}

// env reads typed environment values, remembering the first parse error.
type env struct {
	err error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s=%q: not an integer", key, raw)
	}
	if err != nil {
		return def
	}
	return v
}

func (e *env) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s=%q: not a boolean", key, raw)
	}
	if err != nil {
		return def
	}
	return v
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%s=%q: not a duration", key, raw)
	}
	if err != nil {
		return def
	}
	return v
}

// envFile finds -env-file in args without parsing the rest.
func envFile(args []string) string {
	for i, a := range args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "env-file" {
			continue
		}
		if hasVal {
			return val
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

// Load reads the .env file (if present), then flags whose defaults come from the environment.
// Values already set in the environment win over the .env file.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(envFile(args)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var (
		c  Config
		e  env
		fl = flag.NewFlagSet("access-sync", flag.ContinueOnError)
	)
	fl.String("env-file", ".env", "optional dotenv file")

	fl.StringVar(&c.HTTPAddr, "http-addr", e.str("HTTP_ADDR", ":8080"), "HTTP listen address")
	fl.StringVar(&c.GRPCAddr, "grpc-addr", e.str("GRPC_ADDR", ":9090"), "gRPC health listen address")
	fl.StringVar(&c.GRPCTLSCert, "grpc-tls-cert", e.str("GRPC_TLS_CERT", ""), "TLS certificate for gRPC (PEM), empty = plaintext")
	fl.StringVar(&c.GRPCTLSKey, "grpc-tls-key", e.str("GRPC_TLS_KEY", ""), "TLS private key for gRPC (PEM)")
	fl.BoolVar(&c.GRPCReflection, "grpc-reflection", e.boolean("GRPC_REFLECTION", false), "enable gRPC server reflection")
	fl.StringVar(&c.DatabaseDSN, "dsn", e.str("DATABASE_DSN", ""), "PostgreSQL DSN")
	fl.StringVar(&c.JWTKey, "jwt-key", e.str("JWT_KEY", ""), "HS256 key for operator tokens, empty disables auth")

	fl.StringVar(&c.Schedule, "schedule", e.str("SYNC_SCHEDULE", "0 2 * * *"), "cron spec for scheduled runs, empty disables")
	fl.IntVar(&c.BatchSize, "batch-size", e.integer("SYNC_BATCH_SIZE", 20), "per-user lookup batch size")
	fl.DurationVar(&c.BatchDelay, "batch-delay", e.duration("SYNC_BATCH_DELAY", time.Second), "delay between per-user batches")
	fl.IntVar(&c.UpsertBatch, "upsert-batch", e.integer("MIRROR_UPSERT_BATCH", 500), "mirror upsert chunk size")
	fl.BoolVar(&c.Strict, "reconcile-strict", e.boolean("RECONCILE_STRICT", false), "fail reconciliation when a primary app instance is missing")
	fl.DurationVar(&c.StreamInterval, "stream-interval", e.duration("STATUS_STREAM_INTERVAL", 2*time.Second), "status stream push interval")

	fl.StringVar(&c.JumpCloud.APIKey, "jumpcloud-api-key", e.str("JUMPCLOUD_API_KEY", ""), "")
	fl.StringVar(&c.JumpCloud.BaseURL, "jumpcloud-base-url", e.str("JUMPCLOUD_BASE_URL", ""), "")
	fl.StringVar(&c.Google.CredentialsFile, "google-credentials", e.str("GOOGLE_CREDENTIALS_FILE", ""), "")
	fl.StringVar(&c.Google.AdminEmail, "google-admin-email", e.str("GOOGLE_ADMIN_EMAIL", ""), "")
	fl.StringVar(&c.Google.Customer, "google-customer", e.str("GOOGLE_CUSTOMER", "my_customer"), "")
	fl.StringVar(&c.Slack.BotToken, "slack-bot-token", e.str("SLACK_BOT_TOKEN", ""), "")
	fl.StringVar(&c.Slack.SCIMToken, "slack-scim-token", e.str("SLACK_SCIM_TOKEN", ""), "")
	fl.StringVar(&c.Atlassian.OrgID, "atlassian-org-id", e.str("ATLASSIAN_ORG_ID", ""), "")
	fl.StringVar(&c.Atlassian.APIKey, "atlassian-api-key", e.str("ATLASSIAN_API_KEY", ""), "")
	fl.StringVar(&c.LDAP.URL, "ldap-url", e.str("LDAP_URL", ""), "")
	fl.StringVar(&c.LDAP.BindDN, "ldap-bind-dn", e.str("LDAP_BIND_DN", ""), "")
	fl.StringVar(&c.LDAP.BindPassword, "ldap-bind-password", e.str("LDAP_BIND_PASSWORD", ""), "")
	fl.StringVar(&c.LDAP.BaseDN, "ldap-base-dn", e.str("LDAP_BASE_DN", ""), "")
	fl.StringVar(&c.LDAP.Filter, "ldap-filter", e.str("LDAP_FILTER", ""), "")
	fl.IntVar(&c.LDAP.PageSize, "ldap-page-size", e.integer("LDAP_PAGE_SIZE", 500), "")

	if e.err != nil {
		return Config{}, e.err
	}
	if err := fl.Parse(args); err != nil {
		return Config{}, err
	}
	return c, c.validate()
}

func (c Config) validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("DATABASE_DSN is required")
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.UpsertBatch <= 0:
		return fmt.Errorf("upsert batch must be positive, got %d", c.UpsertBatch)
	case c.BatchDelay < 0:
		return fmt.Errorf("batch delay must not be negative, got %s", c.BatchDelay)
	case c.StreamInterval <= 0:
		return fmt.Errorf("stream interval must be positive, got %s", c.StreamInterval)
	case (c.GRPCTLSCert == "") != (c.GRPCTLSKey == ""):
		return errors.New("gRPC TLS needs both certificate and key")
	}
	return nil
}

// ConfiguredPlatforms lists the platform keys whose credentials are present.
func (c Config) ConfiguredPlatforms() []string {
	var out []string
	if c.JumpCloud.Configured() {
		out = append(out, "JUMPCLOUD")
	}
	if c.Google.Configured() {
		out = append(out, "GOOGLE")
	}
	if c.Atlassian.Configured() {
		out = append(out, "ATLASSIAN")
	}
	if c.LDAP.Configured() {
		out = append(out, "LDAP")
	}
	if c.Slack.Configured() {
		out = append(out, "SLACK")
	}
	return out
}
