// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTP        `yaml:"http"`
	Auth        Auth        `yaml:"auth"`
	Store       Store       `yaml:"store"`
	Attachments Attachments `yaml:"attachments"`
}

// HTTP configures the listener and server timeouts.
type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Auth points at the PEM certificate used to verify bearer tokens. An inline
// Certificate takes precedence over CertificateFile.
type Auth struct {
	Certificate     string `yaml:"certificate"`
	CertificateFile string `yaml:"certificate_file"`
}

// Store selects the item store backend and its connection settings.
type Store struct {
	Driver        string `yaml:"driver"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// Attachments configures the S3 bucket holding attachment images. Endpoint
// is only set when talking to a local S3 compatible service.
type Attachments struct {
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	Endpoint      string        `yaml:"endpoint"`
	URLExpiration time.Duration `yaml:"url_expiration"`
}

// Default returns the configuration used when no file or override sets a value.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":9090",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: Store{
			Driver:     DriverRedis,
			RedisAddr:  "localhost:6379",
			SQLitePath: "todos.db",
		},
		Attachments: Attachments{
			Region:        "us-east-1",
			URLExpiration: 300 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("AUTH_CERTIFICATE", &c.Auth.Certificate)
	str("AUTH_CERTIFICATE_FILE", &c.Auth.CertificateFile)
	str("TODOS_STORE", &c.Store.Driver)
	str("REDIS_ADDR", &c.Store.RedisAddr)
	str("REDIS_PASSWORD", &c.Store.RedisPassword)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("ATTACHMENT_S3_BUCKET", &c.Attachments.Bucket)
	str("AWS_REGION", &c.Attachments.Region)
	str("S3_ENDPOINT", &c.Attachments.Endpoint)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Store.RedisDB = n
	}
	if v, ok := lookup("SIGNED_URL_EXPIRATION"); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SIGNED_URL_EXPIRATION: %w", err)
		}
		c.Attachments.URLExpiration = time.Duration(secs) * time.Second
	}
	return nil
}

// Validate reports configuration that would make the service unusable.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Auth.Certificate == "" && c.Auth.CertificateFile == "" {
		errs = append(errs, errors.New("auth.certificate or auth.certificate_file is required"))
	}
	switch c.Store.Driver {
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Attachments.Bucket == "" {
		errs = append(errs, errors.New("attachments.bucket is required"))
	}
	if c.Attachments.URLExpiration <= 0 {
		errs = append(errs, errors.New("attachments.url_expiration must be positive"))
	}
	return errors.Join(errs...)
}

// CertificatePEM returns the configured verification certificate.
func (c Config) CertificatePEM() ([]byte, error) {
	if c.Auth.Certificate != "" {
		return []byte(c.Auth.Certificate), nil
	}
	data, err := os.ReadFile(c.Auth.CertificateFile)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	return data, nil
}
