// Package config loads the migratory command configuration.
//
// Values are resolved in this order: defaults, then the YAML file, then
// environment variables prefixed with MIGRATORY_. Nested fields join their
// env tags with underscores, for example MIGRATORY_STORE_REDIS_ADDR.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "MIGRATORY"

// Store drivers.
const (
	StoreSQL    = "sql"
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

// Config is the full command configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Store      StoreConfig      `yaml:"store" env:"STORE"`
	Migrations MigrationsConfig `yaml:"migrations" env:"MIGRATIONS"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
}

// DatabaseConfig names the database the SQL migrations run against.
type DatabaseConfig struct {
	// Driver is "sqlite" or "mysql".
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// StoreConfig selects where migration records are kept.
type StoreConfig struct {
	// Driver is one of sql, memory, redis or mongo. The sql driver keeps
	// records in a table of the migrated database.
	Driver    string      `yaml:"driver" env:"DRIVER"`
	Table     string      `yaml:"table" env:"TABLE"`
	Namespace string      `yaml:"namespace" env:"NAMESPACE"`
	Redis     RedisConfig `yaml:"redis" env:"REDIS"`
	Mongo     MongoConfig `yaml:"mongo" env:"MONGO"`
}

// RedisConfig holds the Redis record store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// MongoConfig holds the MongoDB record store settings.
type MongoConfig struct {
	URI        string `yaml:"uri" env:"URI"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// MigrationsConfig describes where SQL migration files live.
type MigrationsConfig struct {
	Dir           string   `yaml:"dir" env:"DIR"`
	Extensions    []string `yaml:"extensions" env:"EXTENSIONS"`
	Transactional bool     `yaml:"transactional" env:"TRANSACTIONAL"`
}

// LogConfig controls runner output.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is console for colored progress lines or json for zap output.
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "migratory.db",
		},
		Store: StoreConfig{
			Driver:    StoreSQL,
			Table:     "migratory_records",
			Namespace: "default",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "migratory",
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "migratory",
				Collection: "migratory_records",
			},
		},
		Migrations: MigrationsConfig{
			Dir:        "migrations",
			Extensions: []string{".sql", ".sqlite"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Loader builds a Config from defaults, a YAML file and the environment.
type Loader struct {
	path      string
	envPrefix string
	lookupEnv func(string) (string, bool)
}

// NewLoader returns a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix, lookupEnv: os.LookupEnv}
}

// WithPath returns a new Loader reading the YAML file at path. A missing
// file is an error only when a path was given explicitly.
func (l *Loader) WithPath(path string) *Loader {
	new := *l
	new.path = path
	return &new
}

// WithEnvPrefix returns a new Loader using prefix for env overrides.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	new := *l
	new.envPrefix = prefix
	return &new
}

// WithLookupEnv returns a new Loader reading variables through lookup.
func (l *Loader) WithLookupEnv(lookup func(string) (string, bool)) *Loader {
	new := *l
	new.lookupEnv = lookup
	return &new
}

// Load resolves and validates the configuration.
//
// Returns:
//   - *Config: The resolved configuration.
//   - error: An error if the file cannot be read or parsed, an override
//     has the wrong type, or validation fails.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	}

	if err := l.applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := l.applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := l.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "sqlite3", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: must be sqlite or mysql", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Store.Driver {
	case StoreSQL, StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required"))
		}
	case StoreMongo:
		if c.Store.Mongo.URI == "" {
			errs = append(errs, errors.New("store.mongo.uri is required"))
		}
		if c.Store.Mongo.Database == "" {
			errs = append(errs, errors.New("store.mongo.database is required"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"store.driver %q: must be one of sql, memory, redis, mongo", c.Store.Driver,
		))
	}

	if c.Migrations.Dir == "" {
		errs = append(errs, errors.New("migrations.dir is required"))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: must be console or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
