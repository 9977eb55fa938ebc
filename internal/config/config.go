package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envAppName         = "INPUT_AZURE_WEB_APP_NAME"
	envSlotName        = "INPUT_AZURE_WEB_APP_SLOT_NAME"
	envSubscriptionID  = "INPUT_AZURE_WEB_APP_DEPLOY_SUBSCRIPTION_ID"
	envResourceGroup   = "INPUT_AZURE_WEB_APP_RESOURCE_GROUP_NAME"
	envHealthURI       = "INPUT_HEALTH_URI"
	envVersionURI      = "INPUT_VERSION_URI"
	envHealthTimeout   = "INPUT_HEALTH_TIMEOUT_SECONDS"
	envExpectedVersion = "INPUT_EXPECTED_VERSION_STRING"
)

const (
	envConfigFile          = "DV_CONFIG_FILE"
	envLogLevel            = "DV_LOG_LEVEL"
	envLogFormat           = "DV_LOG_FORMAT"
	envBaseURL             = "DV_BASE_URL"
	envPollInterval        = "DV_POLL_INTERVAL"
	envProbeTimeout        = "DV_PROBE_TIMEOUT"
	envRestartDrainTimeout = "DV_RESTART_DRAIN_TIMEOUT"
	envSlackWebhookURL     = "DV_SLACK_WEBHOOK_URL"
	envWebhookURL          = "DV_WEBHOOK_URL"
	envWebhookTemplate     = "DV_WEBHOOK_TEMPLATE"
	envNotifyDryRun        = "DV_NOTIFY_DRY_RUN"
	envPushgatewayURL      = "DV_PUSHGATEWAY_URL"
	envReportFile          = "DV_REPORT_FILE"
	envGitHubOutput        = "GITHUB_OUTPUT"
)

const (
	defaultSlotName            = "production"
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
	defaultPollInterval        = time.Second
	defaultProbeTimeout        = 10 * time.Second
	defaultRestartDrainTimeout = 30 * time.Second
)

// Inputs are the action inputs describing the deployment under verification.
type Inputs struct {
	AppName              string
	SlotName             string
	SubscriptionID       string
	ResourceGroup        string
	HealthURI            string
	VersionURI           string
	HealthTimeoutSeconds int
	ExpectedVersion      string
}

// Config describes runtime configuration loaded from the environment.
type Config struct {
	Inputs Inputs

	LogLevel  string
	LogFormat string
	// BaseURL replaces the azurewebsites.net URL derived from the app and slot.
	BaseURL             string
	PollInterval        time.Duration
	ProbeTimeout        time.Duration
	RestartDrainTimeout time.Duration
	SlackWebhookURL     string
	WebhookURL          string
	WebhookTemplate     string
	NotifyDryRun        bool
	PushgatewayURL      string
	ReportFile          string
	GitHubOutput        string
}

// HealthTimeout returns the configured health timeout as a duration.
func (c Config) HealthTimeout() time.Duration {
	return time.Duration(c.Inputs.HealthTimeoutSeconds) * time.Second
}

// ValidationError lists every invalid or missing setting found by Load.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load reads configuration from environment variables, a local .env file and
// the optional YAML file named by DV_CONFIG_FILE. Existing environment
// variables take precedence over .env, which takes precedence over the file.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	var fileValues map[string]string
	if path, ok := lookupTrimmed(envConfigFile); ok && path != "" {
		values, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		fileValues = values
	}

	return parse(func(key string) (string, bool) {
		if value, ok := lookupTrimmed(key); ok && value != "" {
			return value, true
		}
		value, ok := fileValues[key]
		return strings.TrimSpace(value), ok
	})
}

func parse(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		Inputs: Inputs{
			SlotName: defaultSlotName,
		},
		LogLevel:            defaultLogLevel,
		LogFormat:           defaultLogFormat,
		PollInterval:        defaultPollInterval,
		ProbeTimeout:        defaultProbeTimeout,
		RestartDrainTimeout: defaultRestartDrainTimeout,
	}
	var problems []string

	str := func(key string, dst *string) {
		if value, ok := lookup(key); ok && value != "" {
			*dst = value
		}
	}
	duration := func(key string, dst *time.Duration) {
		value, ok := lookup(key)
		if !ok || value == "" {
			return
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			return
		}
		if parsed <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be greater than zero", key))
			return
		}
		*dst = parsed
	}

	str(envAppName, &cfg.Inputs.AppName)
	str(envSlotName, &cfg.Inputs.SlotName)
	str(envSubscriptionID, &cfg.Inputs.SubscriptionID)
	str(envResourceGroup, &cfg.Inputs.ResourceGroup)
	str(envHealthURI, &cfg.Inputs.HealthURI)
	str(envVersionURI, &cfg.Inputs.VersionURI)
	str(envExpectedVersion, &cfg.Inputs.ExpectedVersion)

	if value, ok := lookup(envHealthTimeout); ok && value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be an integer number of seconds", envHealthTimeout))
		} else {
			cfg.Inputs.HealthTimeoutSeconds = seconds
		}
	}

	str(envLogLevel, &cfg.LogLevel)
	str(envLogFormat, &cfg.LogFormat)
	str(envBaseURL, &cfg.BaseURL)
	duration(envPollInterval, &cfg.PollInterval)
	duration(envProbeTimeout, &cfg.ProbeTimeout)
	duration(envRestartDrainTimeout, &cfg.RestartDrainTimeout)
	str(envSlackWebhookURL, &cfg.SlackWebhookURL)
	str(envWebhookURL, &cfg.WebhookURL)
	str(envWebhookTemplate, &cfg.WebhookTemplate)
	str(envPushgatewayURL, &cfg.PushgatewayURL)
	str(envReportFile, &cfg.ReportFile)
	str(envGitHubOutput, &cfg.GitHubOutput)

	if value, ok := lookup(envNotifyDryRun); ok && value != "" {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a boolean", envNotifyDryRun))
		} else {
			cfg.NotifyDryRun = dryRun
		}
	}

	if cfg.Inputs.AppName == "" {
		problems = append(problems, envAppName+" is required")
	}
	if cfg.Inputs.ExpectedVersion == "" {
		problems = append(problems, envExpectedVersion+" is required")
	}

	for _, u := range []struct{ name, value string }{
		{envBaseURL, cfg.BaseURL},
		{envSlackWebhookURL, cfg.SlackWebhookURL},
		{envWebhookURL, cfg.WebhookURL},
		{envPushgatewayURL, cfg.PushgatewayURL},
	} {
		if u.value == "" {
			continue
		}
		if err := validateURL(u.value, u.name); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return Config{}, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
