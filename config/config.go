package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"napolihr/password"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// OrganizationInsert always inserts the default organization.
	OrganizationInsert = "insert"
	// OrganizationEnsure looks the default organization up by code first.
	OrganizationEnsure = "ensure"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the root configuration for the bootstrap entrypoint.
type Config struct {
	Environment string          `mapstructure:"environment"`
	DB          DBConfig        `mapstructure:"db"`
	Bootstrap   BootstrapConfig `mapstructure:"bootstrap"`
	Seed        SeedConfig      `mapstructure:"seed"`
	Log         LogConfig       `mapstructure:"log"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type BootstrapConfig struct {
	WaitInterval       time.Duration `mapstructure:"wait_interval"`
	WaitTimeout        time.Duration `mapstructure:"wait_timeout"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	ResetSchema        bool          `mapstructure:"reset_schema"`
	OrganizationPolicy string        `mapstructure:"organization_policy"`
	BackupDir          string        `mapstructure:"backup_dir"`
	MaxBackups         int           `mapstructure:"max_backups"`
}

type SeedConfig struct {
	Password   string `mapstructure:"password"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Load reads an optional .env file and the optional YAML file at path, then
// overlays environment variables. Nested keys map to upper-case env names
// with dots replaced by underscores, so db.host is read from DB_HOST.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "Development")

	v.SetDefault("db.driver", DriverMySQL)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.username", "root")
	v.SetDefault("db.password", "password")
	v.SetDefault("db.name", "napoli_hr")
	v.SetDefault("db.ssl_mode", "disable")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", time.Hour)

	v.SetDefault("bootstrap.wait_interval", time.Second)
	v.SetDefault("bootstrap.wait_timeout", time.Duration(0))
	v.SetDefault("bootstrap.dial_timeout", 2*time.Second)
	v.SetDefault("bootstrap.probe_timeout", 5*time.Second)
	v.SetDefault("bootstrap.reset_schema", true)
	v.SetDefault("bootstrap.organization_policy", OrganizationInsert)
	v.SetDefault("bootstrap.backup_dir", "")
	v.SetDefault("bootstrap.max_backups", 5)

	v.SetDefault("seed.password", "password123")
	v.SetDefault("seed.bcrypt_cost", password.DefaultCost)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", FormatConsole)

	v.SetDefault("metrics.textfile", "")
}

// Validate rejects settings the bootstrap cannot act on.
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverMySQL, DriverPostgres:
		if c.DB.DSN != "" {
			if _, err := c.DB.dsnAddress(); err != nil {
				errs = append(errs, fmt.Errorf("db.dsn: %w", err))
			}
			break
		}
		if c.DB.Host == "" {
			errs = append(errs, errors.New("db.host is required"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("db.port %d out of range", c.DB.Port))
		}
	case DriverSQLite:
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}

	if c.Bootstrap.WaitInterval <= 0 {
		errs = append(errs, errors.New("bootstrap.wait_interval must be positive"))
	}
	if c.Bootstrap.WaitTimeout < 0 {
		errs = append(errs, errors.New("bootstrap.wait_timeout must not be negative"))
	}
	if c.Bootstrap.DialTimeout < 0 {
		errs = append(errs, errors.New("bootstrap.dial_timeout must not be negative"))
	}
	if c.Bootstrap.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("bootstrap.probe_timeout must be positive"))
	}
	switch c.Bootstrap.OrganizationPolicy {
	case OrganizationInsert, OrganizationEnsure:
	default:
		errs = append(errs, fmt.Errorf("unknown bootstrap.organization_policy %q", c.Bootstrap.OrganizationPolicy))
	}

	if c.Seed.Password == "" {
		errs = append(errs, errors.New("seed.password is required"))
	}
	if c.Seed.BcryptCost < password.MinCost || c.Seed.BcryptCost > password.MaxCost {
		errs = append(errs, fmt.Errorf("seed.bcrypt_cost %d out of range [%d, %d]", c.Seed.BcryptCost, password.MinCost, password.MaxCost))
	}

	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Address is the host:port the readiness wait dials. An explicit DSN wins
// over db.host and db.port, since that is where the connection goes.
func (c DBConfig) Address() string {
	if c.DSN != "" && c.Networked() {
		if addr, err := c.dsnAddress(); err == nil {
			return addr
		}
	}
	return c.hostPort()
}

func (c DBConfig) hostPort() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// dsnAddress extracts the TCP server address from the configured DSN.
func (c DBConfig) dsnAddress() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		parsed, err := gomysql.ParseDSN(c.DSN)
		if err != nil {
			return "", err
		}
		if parsed.Net != "tcp" {
			return "", fmt.Errorf("protocol %q cannot be waited on, use tcp", parsed.Net)
		}
		return parsed.Addr, nil
	case DriverPostgres:
		parsed, err := pgconn.ParseConfig(c.DSN)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(parsed.Host, "/") {
			return "", fmt.Errorf("unix socket %q cannot be waited on, use a tcp host", parsed.Host)
		}
		return net.JoinHostPort(parsed.Host, strconv.Itoa(int(parsed.Port))), nil
	default:
		return "", fmt.Errorf("driver %q has no server address", c.Driver)
	}
}

// Networked reports whether the driver talks to a server over TCP.
func (c DBConfig) Networked() bool {
	return c.Driver == DriverMySQL || c.Driver == DriverPostgres
}

// GetDSN returns the explicit DSN when one is configured, otherwise builds one
// for the driver from the individual settings.
func (c DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.Username, c.Password, c.Name, c.SSLMode)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.Username, c.Password, c.hostPort(), c.Name)
	}
}

// LogFields returns the non-secret settings worth printing before connecting.
func (c *Config) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.String("environment", c.Environment),
		zap.String("driver", c.DB.Driver),
		zap.String("database", c.DB.Name),
	}
	if c.DB.Networked() {
		fields = append(fields,
			zap.String("address", c.DB.Address()),
			zap.String("user", c.DB.Username),
		)
	} else {
		fields = append(fields, zap.String("path", c.DB.DSN))
	}
	return append(fields,
		zap.Bool("reset_schema", c.Bootstrap.ResetSchema),
		zap.String("organization_policy", c.Bootstrap.OrganizationPolicy),
		zap.Duration("wait_timeout", c.Bootstrap.WaitTimeout),
	)
}
