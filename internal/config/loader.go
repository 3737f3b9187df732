package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix is prepended to every automatic environment override,
// e.g. DBSNAP_BACKUP_OUTPUT_DIRECTORY.
const EnvPrefix = "DBSNAP"

// Config represents the top-level YAML configuration file.
type Config struct {
	Include  []string       `mapstructure:"include"  yaml:"include,omitempty"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Vault    VaultConfig    `mapstructure:"vault"    yaml:"vault"`
	Backup   BackupConfig   `mapstructure:"backup"   yaml:"backup"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
}

// DatabaseConfig holds the MariaDB connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"             yaml:"host"`
	Port            string        `mapstructure:"port"             yaml:"port"`
	User            string        `mapstructure:"user"             yaml:"user"`
	Password        string        `mapstructure:"password"         yaml:"password,omitempty"`
	Name            string        `mapstructure:"name"             yaml:"name"`
	ConnectionLimit int           `mapstructure:"connection_limit" yaml:"connection_limit"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"    yaml:"query_timeout"`
	// VaultRole, when set, is the Vault path the credentials are read from.
	VaultRole string `mapstructure:"vault_role" yaml:"vault_role,omitempty"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address"`
	Token       string `mapstructure:"token"        yaml:"token,omitempty"`
	RoleID      string `mapstructure:"role_id"      yaml:"role_id,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	OutputDirectory string `mapstructure:"output_directory" yaml:"output_directory"`
	TablesFile      string `mapstructure:"tables_file"      yaml:"tables_file"`
	TimestampFormat string `mapstructure:"timestamp_format" yaml:"timestamp_format"`
}

// ScheduleConfig holds the cron expressions of the recurring backups.
type ScheduleConfig struct {
	Daily    string `mapstructure:"daily"    yaml:"daily"`
	Weekly   string `mapstructure:"weekly"   yaml:"weekly"`
	Timezone string `mapstructure:"timezone" yaml:"timezone,omitempty"`
}

// APIConfig configures the read-only statistics API.
type APIConfig struct {
	Enabled     bool           `mapstructure:"enabled"      yaml:"enabled"`
	Address     string         `mapstructure:"address"      yaml:"address"`
	CORSOrigins []string       `mapstructure:"cors_origins" yaml:"cors_origins"`
	Services    map[string]int `mapstructure:"services"     yaml:"services"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"       yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// defaults mirror the values the service historically ran with.
var defaults = map[string]any{
	"database.host":             "localhost",
	"database.port":             "3306",
	"database.user":             "",
	"database.password":         "",
	"database.name":             "",
	"database.connection_limit": 5,
	"database.query_timeout":    "5m",
	"database.vault_role":       "",
	"vault.address":             "",
	"vault.token":               "",
	"vault.role_id":             "",
	"vault.approle_name":        "",
	"backup.output_directory":   "./backups",
	"backup.tables_file":        "backup.conf",
	"backup.timestamp_format":   "20060102150405",
	"schedule.daily":            "0 3 * * *",
	"schedule.weekly":           "0 4 * * 0",
	"schedule.timezone":         "",
	"api.enabled":               true,
	"api.address":               ":3001",
	"api.cors_origins": []string{
		"http://localhost:3000",
		"http://localhost:3001",
		"http://localhost:5173",
	},
	"api.services": map[string]int{
		"login": 6900,
		"char":  6121,
		"map":   5121,
	},
	"log.level":       "info",
	"log.development": false,
}

// legacyEnv binds the environment variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"database.host":     "MARIADB_HOST",
	"database.port":     "MARIADB_PORT",
	"database.user":     "MARIADB_USER",
	"database.password": "MARIADB_PASSWORD",
	"database.name":     "MARIADB_DATABASE",
	"api.cors_origins":  "CORS_ORIGINS",
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, applies environment overrides and unmarshals
// into the Config struct. An empty path loads defaults and environment only.
func (c *Config) Load(path string) error {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("%w: bind env %s: %v", ErrLoadConfig, env, err)
		}
	}

	// Read base configuration
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Merge include files (if any)
	for _, inc := range v.GetStringSlice("include") {
		data, err := os.ReadFile(inc)
		if err != nil {
			return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
		}
	}

	// Unmarshal into the Config struct
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	// API_PORT predates the api.address key.
	if port := os.Getenv("API_PORT"); port != "" {
		c.API.Address = ":" + port
	}
	// CORS_ORIGINS is a comma separated list.
	if len(c.API.CORSOrigins) == 1 && strings.Contains(c.API.CORSOrigins[0], ",") {
		c.API.CORSOrigins = splitList(c.API.CORSOrigins[0])
	}

	return c.Validate()
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch {
	case c.Backup.OutputDirectory == "":
		return fmt.Errorf("%w: backup.output_directory is required", ErrValidateConfig)
	case c.Backup.TimestampFormat == "":
		return fmt.Errorf("%w: backup.timestamp_format is required", ErrValidateConfig)
	case strings.ContainsAny(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC).Format(c.Backup.TimestampFormat), `/\`):
		return fmt.Errorf("%w: backup.timestamp_format must not produce path separators", ErrValidateConfig)
	case c.Database.ConnectionLimit <= 0:
		return fmt.Errorf("%w: database.connection_limit must be positive", ErrValidateConfig)
	case c.Schedule.Daily == "" || c.Schedule.Weekly == "":
		return fmt.Errorf("%w: schedule.daily and schedule.weekly are required", ErrValidateConfig)
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("%w: schedule.timezone: %v", ErrValidateConfig, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
