// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Archive endpoint
		{"babelia.baseurl", "BABELIA_BASEURL", validateEnvURL},
		{"babelia.ratelimit", "BABELIA_RATELIMIT", validateEnvRateLimit},
		{"babelia.timeout", "BABELIA_TIMEOUT", validateEnvPositiveInt},
		{"babelia.sampling", "BABELIA_SAMPLING", validateEnvSampling},

		// Analyzer
		{"analyzer.modelpath", "BABELIA_MODELPATH", validateEnvPath},
		{"analyzer.vocabpath", "BABELIA_VOCABPATH", validateEnvPath},
		{"analyzer.threshold", "BABELIA_THRESHOLD", validateEnvThreshold},
		{"analyzer.anomalythreshold", "BABELIA_ANOMALY_THRESHOLD", validateEnvThreshold},
		{"analyzer.threads", "BABELIA_THREADS", validateEnvThreads},
		{"analyzer.usexnnpack", "BABELIA_USEXNNPACK", validateEnvBool},

		// Search loop
		{"search.maximages", "BABELIA_MAX_IMAGES", validateEnvNonNegativeInt},

		// Alerts
		{"alert.enabled", "BABELIA_ALERT_ENABLED", validateEnvBool},
		{"alert.smtphost", "BABELIA_SMTP_HOST", nil},
		{"alert.smtpport", "BABELIA_SMTP_PORT", validateEnvPositiveInt},
		{"alert.username", "BABELIA_SMTP_USERNAME", nil},
		{"alert.password", "BABELIA_SMTP_PASSWORD", nil},
		{"alert.from", "BABELIA_ALERT_FROM", nil},
		{"alert.to", "BABELIA_ALERT_TO", nil},

		// Debug
		{"debug", "BABELIA_DEBUG", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got '%s'", u.Scheme)
	}
	return nil
}

func validateEnvRateLimit(value string) error {
	rl, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid rate limit: %w", err)
	}
	if rl <= 0 {
		return fmt.Errorf("rate limit must be positive, got %g", rl)
	}
	return nil
}

func validateEnvSampling(value string) error {
	switch value {
	case SamplingRandom, SamplingSequential:
		return nil
	}
	return fmt.Errorf("sampling mode must be '%s' or '%s', got '%s'", SamplingRandom, SamplingSequential, value)
}

func validateEnvThreshold(value string) error {
	t, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if t < 0 || t > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %g", t)
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid thread count: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("thread count must be >= 0, got %d", n)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("value must be positive, got %d", n)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("value must be >= 0, got %d", n)
	}
	return nil
}

func validateEnvPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path must not be empty")
	}
	return nil
}
