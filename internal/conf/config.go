// Package conf loads and validates the application configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains general application settings
type MainSettings struct {
	Name string    // agent node name, used in alerts and log records
	Log  LogConfig // main log file configuration
}

// BabeliaSettings configures the image archive endpoint and request pacing
type BabeliaSettings struct {
	BaseURL   string  // archive base URL
	RateLimit float64 // minimum seconds between requests
	Timeout   int     // per-request timeout in seconds
	Sampling  string  // coordinate sampling mode: "random" or "sequential"
	UserAgent string  // User-Agent header sent with each request
}

// AnalyzerSettings configures the two-stage significance analyzer
type AnalyzerSettings struct {
	ModelPath        string  // path to the image encoder TFLite model
	VocabPath        string  // optional override for the concept vocabulary asset
	Threshold        float64 // significance threshold for fused scores
	AnomalyThreshold float64 // noise score above which an image is pure noise
	EdgeThreshold    float64 // gradient magnitude counted as an edge pixel
	Threads          int     // interpreter threads, 0 = all CPUs
	UseXNNPACK       bool    // use XNNPACK delegate for inference
	Debug            bool
}

// SearchSettings configures the discovery run loop
type SearchSettings struct {
	MaxImages        int // stop after this many analyzed images, 0 = unlimited
	ProgressInterval int // log run statistics every N images
	FetchRetryDelay  int // seconds to wait after a failed fetch
	ErrorBackoff     int // seconds to wait after a pipeline error
}

// OutputSettings configures where discoveries are persisted
type OutputSettings struct {
	DBPath   string // SQLite database path
	ImageDir string // directory for saved discovery images
}

// AlertSettings configures email delivery of discovery alerts
type AlertSettings struct {
	Enabled   bool
	SMTPHost  string
	SMTPPort  int
	Username  string
	Password  string
	From      string
	To        string
	ExtraURLs []string // additional shoutrrr service URLs
}

// MQTTSettings configures optional discovery publishing over MQTT
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:port
	Topic    string
	Username string
	Password string
	Retain   bool
}

// TelemetrySettings configures the Prometheus metrics endpoint
type TelemetrySettings struct {
	Enabled bool
	Listen  string // host:port
}

// Settings is the root of the configuration tree
type Settings struct {
	Debug bool // global debug flag

	Main      MainSettings
	Babelia   BabeliaSettings
	Analyzer  AnalyzerSettings
	Search    SearchSettings
	Output    OutputSettings
	Alert     AlertSettings
	MQTT      MQTTSettings
	Telemetry TelemetrySettings

	Version   string `yaml:"-"` // build version, not saved to config
	BuildDate string `yaml:"-"` // build date, not saved to config
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // Path to the log file
	Rotation    RotationType // Type of log rotation
	MaxSize     int64        // Max size in bytes for RotationSize
	RotationDay string       // Day of the week for RotationWeekly
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and installs it as the current one.
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

	// defined in defaults.go
	setDefaultConfig()

	// defined in env.go
	if err := bindEnvVars(); err != nil {
		log.Printf("Warning: %v", err)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first for an atomic replace
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns a list of default configuration paths for the
// current operating system, following standard conventions for application
// configuration files. If a config.yaml is found in any of the paths, that
// path alone is returned.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error getting executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "babelia"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "babelia"),
			"/etc/babelia",
		}
	}

	for _, path := range configPaths {
		configFile := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFile); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", fmt.Errorf("error getting config paths: %w", err)
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", fmt.Errorf("config file not found")
}

// RequestTimeout returns the per-request HTTP timeout as a duration.
func (b *BabeliaSettings) RequestTimeout() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// MinInterval returns the minimum interval between requests as a duration.
func (b *BabeliaSettings) MinInterval() time.Duration {
	return time.Duration(b.RateLimit * float64(time.Second))
}
