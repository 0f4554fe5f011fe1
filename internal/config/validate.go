package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAnalyzer(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateOutbox(); err != nil {
		return err
	}
	if err := c.validateArtifactCache(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAnalyzer() error {
	if c.Analyzer.Binary == "" {
		return errors.New("analyzer.binary must be set")
	}
	if c.Analyzer.TimeoutSeconds < 0 {
		return errors.New("analyzer.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if !c.Ingest.Enabled {
		return nil
	}
	if c.Ingest.URL == "" {
		return errors.New("ingest.url is required when ingest.enabled is true")
	}
	if !strings.HasPrefix(c.Ingest.URL, "http://") && !strings.HasPrefix(c.Ingest.URL, "https://") {
		return fmt.Errorf("ingest.url %q must be an http(s) URL", c.Ingest.URL)
	}
	if c.Ingest.RequestTimeout <= 0 {
		return errors.New("ingest.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateOutbox() error {
	if c.Outbox.MaxAttempts <= 0 {
		return errors.New("outbox.max_attempts must be positive")
	}
	if c.Outbox.BackoffSeconds < 0 {
		return errors.New("outbox.backoff_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateArtifactCache() error {
	if !c.ArtifactCache.Enabled {
		return nil
	}
	if c.ArtifactCache.BaseURL == "" {
		return errors.New("artifact_cache.base_url is required when artifact_cache.enabled is true")
	}
	if !strings.HasPrefix(c.ArtifactCache.BaseURL, "http://") && !strings.HasPrefix(c.ArtifactCache.BaseURL, "https://") {
		return fmt.Errorf("artifact_cache.base_url %q must be an http(s) URL", c.ArtifactCache.BaseURL)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.InboxPollInterval <= 0 {
		return errors.New("workflow.inbox_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
