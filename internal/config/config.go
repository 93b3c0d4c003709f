package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultSecret = "change-me"

type Config struct {
	Env        string `yaml:"env" env:"ENV,NODE_ENV" env-default:"development"`
	Port       string `yaml:"port" env:"PORT" env-default:"8080"`
	DBAdapter  string `yaml:"db_adapter" env:"DB_ADAPTER" env-default:"postgres"`
	SQLiteFile string `yaml:"sqlite_file" env:"SQLITE_FILE" env-default:"./data/vetportal.db"`
	JwtSecret  string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// TokenTTL bounds access tokens issued by the in-process identity provider.
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`

	// Identity provider settings. An empty IdentityURL points the relay at
	// this process.
	IdentityURL     string        `yaml:"identity_url" env:"IDENTITY_URL"`
	ServeIdentity   bool          `yaml:"serve_identity" env:"SERVE_IDENTITY" env-default:"true"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout" env:"UPSTREAM_TIMEOUT" env-default:"5s"`

	LoginRatePerMinute int      `yaml:"login_rate_per_minute" env:"LOGIN_RATE_PER_MINUTE" env-default:"20"`
	AllowedOrigins     []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:","`

	SeedAdminEmail    string `yaml:"seed_admin_email" env:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `yaml:"seed_admin_password" env:"SEED_ADMIN_PASSWORD"`

	MigrationsDir string `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"./migrations"`

	// PostgreSQL connection settings
	PostgresDSN      string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresHost     string `yaml:"postgres_host" env:"POSTGRES_HOST,DB_HOST" env-default:"localhost"`
	PostgresPort     string `yaml:"postgres_port" env:"POSTGRES_PORT,DB_PORT" env-default:"5432"`
	PostgresUser     string `yaml:"postgres_user" env:"POSTGRES_USER,DB_USER" env-default:"vet"`
	PostgresPassword string `yaml:"postgres_password" env:"POSTGRES_PASSWORD,DB_PASSWORD" env-default:"vetpass"`
	PostgresDB       string `yaml:"postgres_db" env:"POSTGRES_DB,DB_NAME" env-default:"vetportal"`
	PostgresSSLMode  string `yaml:"postgres_sslmode" env:"POSTGRES_SSLMODE,DB_SSLMODE" env-default:"disable"`
}

// Production reports whether cookies must carry the Secure attribute.
func (c *Config) Production() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

// Load reads an optional YAML file (explicit path, then CONFIG_PATH) and
// overlays the environment on top of it.
func Load(path string) (*Config, error) {
	var c Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &c); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.Production() && (c.JwtSecret == "" || c.JwtSecret == defaultSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("invalid UPSTREAM_TIMEOUT: %s", c.UpstreamTimeout)
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE: %d", c.LoginRatePerMinute)
	}

	if c.IdentityURL == "" && !c.ServeIdentity {
		return errors.New("IDENTITY_URL must be set when SERVE_IDENTITY=false")
	}
	c.IdentityURL = strings.TrimRight(c.IdentityURL, "/")
	return nil
}

// IdentityBaseURL resolves the upstream provider URL, defaulting to this
// process when it serves the provider itself.
func (c *Config) IdentityBaseURL() string {
	if c.IdentityURL != "" {
		return c.IdentityURL
	}
	return "http://127.0.0.1:" + c.Port
}
