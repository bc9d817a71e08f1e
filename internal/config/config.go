// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

// Package config loads connection profiles and run settings. Values are
// layered: built-in defaults, then the YAML file, then the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/blubskye/nukepave/internal/db"
)

// ErrInvalidConfig wraps validation failures
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	Profiles       map[string]Profile `koanf:"profiles" yaml:"profiles" validate:"dive"`
	DefaultProfile string             `koanf:"default_profile" yaml:"default_profile"`

	Database  DatabaseConfig  `koanf:"database" yaml:"database"`
	Backup    BackupConfig    `koanf:"backup" yaml:"backup"`
	Restore   RestoreConfig   `koanf:"restore" yaml:"restore"`
	Retention RetentionConfig `koanf:"retention" yaml:"retention"`
	Schedule  ScheduleConfig  `koanf:"schedule" yaml:"schedule"`
	Log       LogConfig       `koanf:"log" yaml:"log"`

	path string
}

// Profile holds connection settings for a database
type Profile struct {
	Type     string `koanf:"type" yaml:"type,omitempty" validate:"omitempty,oneof=mariadb mysql postgres postgresql sqlite sqlite3"`
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port" validate:"gte=0,lte=65535"`
	User     string `koanf:"user" yaml:"user"`
	Password string `koanf:"password" yaml:"password,omitempty"`
	Socket   string `koanf:"socket" yaml:"socket,omitempty"`
	Database string `koanf:"database" yaml:"database,omitempty"`
}

// DatabaseConfig is the connection given by the file's database section or
// the DB_* variables. Non-empty fields override the selected profile.
type DatabaseConfig struct {
	Type     string `koanf:"type" yaml:"type,omitempty" validate:"omitempty,oneof=mariadb mysql postgres postgresql sqlite sqlite3"`
	Host     string `koanf:"host" yaml:"host,omitempty"`
	Port     int    `koanf:"port" yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	User     string `koanf:"user" yaml:"user,omitempty"`
	Password string `koanf:"password" yaml:"password,omitempty"`
	Socket   string `koanf:"socket" yaml:"socket,omitempty"`
	Name     string `koanf:"name" yaml:"name,omitempty"`
}

type BackupConfig struct {
	Dir         string `koanf:"dir" yaml:"dir"`
	Compression string `koanf:"compression" yaml:"compression" validate:"omitempty,oneof=none gzip xz zstd"`
	FetchSize   int    `koanf:"fetch_size" yaml:"fetch_size" validate:"min=1"`
	Parallel    int    `koanf:"parallel" yaml:"parallel" validate:"min=1,max=64"`
}

type RestoreConfig struct {
	BatchSize int `koanf:"batch_size" yaml:"batch_size" validate:"min=1,max=100000"`
}

type RetentionConfig struct {
	Keep int `koanf:"keep" yaml:"keep" validate:"min=1"`
}

type ScheduleConfig struct {
	Cron string `koanf:"cron" yaml:"cron,omitempty"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=console json"`
	File   string `koanf:"file" yaml:"file,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		Backup: BackupConfig{
			Dir:         ".",
			Compression: "none",
			FetchSize:   db.DefaultFetchSize,
			Parallel:    1,
		},
		Restore:   RestoreConfig{BatchSize: db.DefaultBatchSize},
		Retention: RetentionConfig{Keep: 3},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// ToConnectionConfig converts a Profile to db.ConnectionConfig
func (p *Profile) ToConnectionConfig() db.ConnectionConfig {
	dbType := db.NormalizeDatabaseType(p.Type)
	port := p.Port
	if port == 0 {
		if d, err := db.GetDriver(dbType); err == nil {
			port = d.DefaultPort()
		}
	}
	return db.ConnectionConfig{
		Type:     dbType,
		Host:     p.Host,
		Port:     port,
		User:     p.User,
		Password: p.Password,
		Socket:   p.Socket,
		Database: p.Database,
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise ~/.config
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}

	return filepath.Join(configHome, "nukepave"), nil
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadEnvFile sets variables from a dotenv file without overriding ones
// already in the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration. An empty path means the default location;
// a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// legacyEnv maps the DB_* variables that deployment scripts already set
var legacyEnv = map[string]string{
	"db_type":     "database.type",
	"db_host":     "database.host",
	"db_port":     "database.port",
	"db_user":     "database.user",
	"db_password": "database.password",
	"db_socket":   "database.socket",
	"db_name":     "database.name",
	"backup_dir":  "backup.dir",
}

// envTransformFunc maps environment variable names to config paths:
//   - NUKEPAVE_RESTORE_BATCH_SIZE -> restore.batch_size
//   - DB_HOST -> database.host
//
// Anything else is ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if path, ok := legacyEnv[key]; ok {
		return path
	}

	rest, ok := strings.CutPrefix(key, "nukepave_")
	if !ok {
		return ""
	}
	section, field, ok := strings.Cut(rest, "_")
	if !ok || field == "" {
		return ""
	}
	return section + "." + field
}

// Validate checks field ranges and enumerations
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Save writes profiles back to the file, keeping any other sections the
// user wrote by hand. Values from the environment are never persisted.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	doc := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		if err := yamlv3.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		if doc == nil {
			doc = make(map[string]interface{})
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	doc["profiles"] = c.Profiles
	if c.DefaultProfile != "" {
		doc["default_profile"] = c.DefaultProfile
	} else {
		delete(doc, "default_profile")
	}

	data, err := yamlv3.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	c.path = path
	return nil
}

// GetProfile returns a profile by name
func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}

	if name == "" {
		return nil, fmt.Errorf("no profile specified and no default profile set")
	}

	profile, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}

	return &profile, nil
}

// AddProfile adds or updates a profile
func (c *Config) AddProfile(name string, profile Profile) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]Profile)
	}
	c.Profiles[name] = profile
}

// RemoveProfile removes a profile
func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}

	delete(c.Profiles, name)

	// Clear default if it was the removed profile
	if c.DefaultProfile == name {
		c.DefaultProfile = ""
	}

	return nil
}

// SetDefault sets the default profile
func (c *Config) SetDefault(name string) error {
	if name != "" {
		if _, ok := c.Profiles[name]; !ok {
			return fmt.Errorf("profile '%s' not found", name)
		}
	}

	c.DefaultProfile = name
	return nil
}

// ListProfiles returns all profile names, sorted
func (c *Config) ListProfiles() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connection resolves the connection settings: the named profile (or the
// default one, if any) overlaid with the database section.
func (c *Config) Connection(profile string) (db.ConnectionConfig, error) {
	var cfg db.ConnectionConfig
	if profile != "" || c.DefaultProfile != "" {
		p, err := c.GetProfile(profile)
		if err != nil {
			return cfg, err
		}
		cfg = p.ToConnectionConfig()
	}

	d := c.Database
	if d.Type != "" {
		cfg.Type = db.NormalizeDatabaseType(d.Type)
	}
	if d.Host != "" {
		cfg.Host = d.Host
	}
	if d.Port != 0 {
		cfg.Port = d.Port
	}
	if d.User != "" {
		cfg.User = d.User
	}
	if d.Password != "" {
		cfg.Password = d.Password
	}
	if d.Socket != "" {
		cfg.Socket = d.Socket
	}
	if d.Name != "" {
		cfg.Database = d.Name
	}
	if cfg.Type == "" {
		cfg.Type = db.DatabaseTypeMariaDB
	}
	cfg.RetryTimeout = db.DefaultRetryTimeout
	return cfg, nil
}
