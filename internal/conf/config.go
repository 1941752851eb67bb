// config.go: settings struct for the Mismatch Finder service and the viper
// plumbing that loads it from file, environment and defaults.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// LogConfig contains settings for a rotating log file.
type LogConfig struct {
	Enabled  bool   // true to enable this log
	Path     string // path to log file
	MaxSize  int64  // max log file size in bytes before rotation
	Rotation string // rotation policy, "daily", "weekly" or "size"
}

// Log rotation values accepted in LogConfig.Rotation.
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// ServerSettings contains settings for the HTTP API server.
type ServerSettings struct {
	Host         string        // interface to bind to
	Port         string        // port to listen on
	ReadTimeout  time.Duration // request read timeout
	WriteTimeout time.Duration // response write timeout
}

// DatabaseSettings selects and configures the persistence backend.
type DatabaseSettings struct {
	SQLite struct {
		Enabled bool   // true to use SQLite
		Path    string // path to database file
	}
	MySQL struct {
		Enabled  bool   // true to use MySQL
		Username string
		Password string
		Host     string
		Port     string
		Database string
	}
}

// WikidataSettings configures the Wikidata Action API client.
type WikidataSettings struct {
	BaseURL        string        // Action API endpoint
	UserAgent      string        // User-Agent header sent with every request
	Timeout        time.Duration // per-request timeout
	CacheTTL       time.Duration // response cache TTL
	RequestsPerSec float64       // rate limit towards the API
	ChunkSize      int           // max entity ids per wbgetentities call
}

// TelemetrySettings configures the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to expose /metrics
	Listen  string // listen address, e.g. "0.0.0.0:8090"
}

// MismatchSettings contains limits applied to mismatch queries.
type MismatchSettings struct {
	MaxQueryIDs int    // maximum number of item ids per read request
	Language    string // default label/formatting language
}

// Settings is the root configuration structure.
type Settings struct {
	Debug bool // true to enable debug logging

	Main struct {
		Name string    // instance name, used in logging
		Log  LogConfig // main log settings
	}

	Server     ServerSettings
	Database   DatabaseSettings
	Wikidata   WikidataSettings
	Telemetry  TelemetrySettings
	Mismatches MismatchSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and makes it the current one.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("MISMATCH_FINDER")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env cover a full setup
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the list of directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "mismatch-finder"))
	}
	paths = append(paths, ".")

	if len(paths) == 0 {
		return nil, fmt.Errorf("no config paths available")
	}
	return paths, nil
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	return GetSettings()
}
