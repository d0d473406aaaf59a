package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	envPrefix  = "CONTACTS_"
	configFile = "CONTACTS_CONFIG"
)

type Config struct {
	Port      string `koanf:"port" validate:"required"`
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`

	// DBDriver selects the GORM dialector: sqlite uses DBPath, postgres the DB* connection fields.
	DBDriver   string `koanf:"db_driver" validate:"oneof=sqlite postgres"`
	DBPath     string `koanf:"db_path" validate:"required_if=DBDriver sqlite"`
	DBHost     string `koanf:"db_host" validate:"required_if=DBDriver postgres"`
	DBPort     string `koanf:"db_port"`
	DBUser     string `koanf:"db_user" validate:"required_if=DBDriver postgres"`
	DBPassword string `koanf:"db_password"`
	DBName     string `koanf:"db_name" validate:"required_if=DBDriver postgres"`
	DBSSLMode  string `koanf:"db_sslmode"`

	StorageDir    string `koanf:"storage_dir" validate:"required"`
	MaxUploadSize int64  `koanf:"max_upload_size" validate:"gt=0"`
	IngestEnabled bool   `koanf:"ingest_enabled"`
	CORSOrigin    string `koanf:"cors_origin"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Port:          "8080",
		LogLevel:      "info",
		LogFormat:     "json",
		DBDriver:      "sqlite",
		DBPath:        "./contacts.db",
		DBPort:        "5432",
		DBSSLMode:     "disable",
		StorageDir:    "./storage/app",
		MaxUploadSize: 10 << 20,
		CORSOrigin:    "*",
	}
}

// LoadConfig layers defaults, an optional YAML file named by CONTACTS_CONFIG and
// CONTACTS_* environment variables, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	k := koanf.New(".")

	if path := os.Getenv(configFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// CONTACTS_DB_PATH -> db_path
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// PostgresDSN builds the key/value connection string understood by pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}
