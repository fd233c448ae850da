// validate.go - startup validation of the loaded settings
package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// Sampling mode names accepted by babelia.sampling.
const (
	SamplingRandom     = "random"
	SamplingSequential = "sequential"
)

// ValidateSettings checks the loaded settings for values the agent cannot
// start with. It collects all violations rather than stopping at the first.
func ValidateSettings(settings *Settings) error {
	var problems []string

	if settings.Babelia.BaseURL == "" {
		problems = append(problems, "babelia.baseurl must not be empty")
	} else if u, err := url.Parse(settings.Babelia.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, fmt.Sprintf("babelia.baseurl '%s' is not a valid http(s) URL", settings.Babelia.BaseURL))
	}

	if settings.Babelia.RateLimit <= 0 {
		problems = append(problems, fmt.Sprintf("babelia.ratelimit must be positive, got %g", settings.Babelia.RateLimit))
	}

	if settings.Babelia.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("babelia.timeout must be positive, got %d", settings.Babelia.Timeout))
	}

	switch settings.Babelia.Sampling {
	case SamplingRandom, SamplingSequential:
	default:
		problems = append(problems, fmt.Sprintf("babelia.sampling must be '%s' or '%s', got '%s'",
			SamplingRandom, SamplingSequential, settings.Babelia.Sampling))
	}

	if t := settings.Analyzer.Threshold; t < 0 || t > 1 {
		problems = append(problems, fmt.Sprintf("analyzer.threshold must be between 0 and 1, got %g", t))
	}

	if t := settings.Analyzer.AnomalyThreshold; t < 0 || t > 1 {
		problems = append(problems, fmt.Sprintf("analyzer.anomalythreshold must be between 0 and 1, got %g", t))
	}

	if settings.Analyzer.EdgeThreshold < 0 {
		problems = append(problems, fmt.Sprintf("analyzer.edgethreshold must be >= 0, got %g", settings.Analyzer.EdgeThreshold))
	}

	if settings.Analyzer.Threads < 0 {
		problems = append(problems, fmt.Sprintf("analyzer.threads must be >= 0, got %d", settings.Analyzer.Threads))
	}

	if settings.Search.MaxImages < 0 {
		problems = append(problems, fmt.Sprintf("search.maximages must be >= 0, got %d", settings.Search.MaxImages))
	}

	if settings.Search.ProgressInterval <= 0 {
		problems = append(problems, fmt.Sprintf("search.progressinterval must be positive, got %d", settings.Search.ProgressInterval))
	}

	if settings.Alert.Enabled {
		if settings.Alert.SMTPHost == "" {
			problems = append(problems, "alert.smtphost must be set when alerts are enabled")
		}
		if settings.Alert.To == "" {
			problems = append(problems, "alert.to must be set when alerts are enabled")
		}
	}

	if settings.MQTT.Enabled && settings.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker must be set when MQTT is enabled")
	}

	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		problems = append(problems, "telemetry.listen must be set when telemetry is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}
