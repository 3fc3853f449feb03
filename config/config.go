// Package config loads the errata finder settings from defaults, an optional
// YAML file, a .env file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/ortelius/errata-finder/util"
)

// Supported datastore drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverArango   = "arangodb"
)

// Defaults for the database connection
const (
	DefaultDbName     = "rhnschema"
	DefaultDbUser     = "rhnuser"
	DefaultDbPassword = "rhnpw"
	DefaultDbHost     = "localhost"
	DefaultDbPort     = 5432
)

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig holds the datastore connection settings
type DatabaseConfig struct {
	Driver            string        `yaml:"driver"`
	Name              string        `yaml:"dbname"`
	User              string        `yaml:"user"`
	Password          string        `yaml:"password"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	SSLMode           string        `yaml:"sslmode"`
	SQLitePath        string        `yaml:"sqlite_path"`
	ArangoURL         string        `yaml:"arango_url"`
	ConnectTimeoutStr string        `yaml:"connect_timeout"`
	ConnectTimeout    time.Duration `yaml:"-"` // parsed from ConnectTimeoutStr; 0 retries forever
}

// Config is the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns the configuration used when nothing else is supplied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Driver:            DriverPostgres,
			Name:              DefaultDbName,
			User:              DefaultDbUser,
			Password:          DefaultDbPassword,
			Host:              DefaultDbHost,
			Port:              DefaultDbPort,
			SSLMode:           "disable",
			SQLitePath:        "errata.db",
			ArangoURL:         "http://localhost:8529",
			ConnectTimeoutStr: "2m",
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty), a .env file in the working directory and the environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings with ERRATA_* environment variables. MS_PORT
// sets the HTTP port, as in the other ortelius services.
func (c *Config) ApplyEnv() {
	c.Server.Port = util.GetEnvDefault("MS_PORT", c.Server.Port)
	c.LogLevel = util.GetEnvDefault("ERRATA_LOG_LEVEL", c.LogLevel)

	db := &c.Database
	db.Driver = util.GetEnvDefault("ERRATA_DB_DRIVER", db.Driver)
	db.Name = util.GetEnvDefault("ERRATA_DB_NAME", db.Name)
	db.User = util.GetEnvDefault("ERRATA_DB_USER", db.User)
	db.Password = util.GetEnvDefault("ERRATA_DB_PASSWORD", db.Password)
	db.Host = util.GetEnvDefault("ERRATA_DB_HOST", db.Host)
	db.Port = util.GetEnvIntDefault("ERRATA_DB_PORT", db.Port)
	db.SSLMode = util.GetEnvDefault("ERRATA_DB_SSLMODE", db.SSLMode)
	db.SQLitePath = util.GetEnvDefault("ERRATA_SQLITE_PATH", db.SQLitePath)
	db.ArangoURL = util.GetEnvDefault("ERRATA_ARANGO_URL", db.ArangoURL)
	db.ConnectTimeoutStr = util.GetEnvDefault("ERRATA_DB_CONNECT_TIMEOUT", db.ConnectTimeoutStr)
}

func (c *Config) parseDurations() error {
	if c.Database.ConnectTimeoutStr == "" {
		c.Database.ConnectTimeout = 0
		return nil
	}
	d, err := time.ParseDuration(c.Database.ConnectTimeoutStr)
	if err != nil {
		return fmt.Errorf("failed to parse connect_timeout: %w", err)
	}
	c.Database.ConnectTimeout = d
	return nil
}

// MergeFlags overrides settings with the database flags the user set explicitly
func MergeFlags(cfg *Config, flags *pflag.FlagSet) (*Config, error) {
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			if v, err := flags.GetString(name); err == nil {
				*dst = v
			}
		}
	}
	str("driver", &cfg.Database.Driver)
	str("dbname", &cfg.Database.Name)
	str("username", &cfg.Database.User)
	str("password", &cfg.Database.Password)
	str("host", &cfg.Database.Host)
	str("sslmode", &cfg.Database.SSLMode)
	str("sqlite-path", &cfg.Database.SQLitePath)
	str("arango-url", &cfg.Database.ArangoURL)
	str("connect-timeout", &cfg.Database.ConnectTimeoutStr)
	str("log-level", &cfg.LogLevel)
	if flags.Changed("port") {
		if v, err := flags.GetInt("port"); err == nil {
			cfg.Database.Port = v
		}
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresURL renders the connection settings as a postgres:// connection string
func (d DatabaseConfig) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {util.GetStringOrDefault(d.SSLMode, "disable")}}.Encode(),
	}
	return u.String()
}

// Validate reports settings the selected driver cannot work with
func (d DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverPostgres:
		if d.Host == "" || d.Name == "" {
			return fmt.Errorf("postgres driver requires a host and a database name")
		}
	case DriverSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("sqlite driver requires a database path")
		}
	case DriverArango:
		if d.ArangoURL == "" {
			return fmt.Errorf("arangodb driver requires a url")
		}
	default:
		return fmt.Errorf("unknown database driver %q", d.Driver)
	}
	return nil
}
