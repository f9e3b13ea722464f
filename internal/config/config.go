package config

import (
	"fmt"
	"strings"

	"whatshook/internal/models"

	"github.com/caarlos0/env/v11"
)

var (
	ErrMissingWebhookURL  = models.ConfigError{Message: "missing webhook URL"}
	ErrMissingCloudinary  = models.ConfigError{Message: "missing Cloudinary credentials"}
	ErrMissingServiceAcct = models.ConfigError{Message: "missing service account credentials"}
)

// Load reads configuration from the environment and validates it
func Load() (*models.Config, error) {
	var cfg models.Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Deployment environments commonly store the PEM key with literal \n
	// sequences; expand them before key parsing.
	cfg.ServiceAccount.PrivateKey = strings.ReplaceAll(cfg.ServiceAccount.PrivateKey, `\n`, "\n")

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(c *models.Config) error {
	if c.WebhookURL == "" {
		return ErrMissingWebhookURL
	}
	if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
		return ErrMissingCloudinary
	}
	if c.ServiceAccount.ClientEmail == "" || c.ServiceAccount.PrivateKey == "" {
		return ErrMissingServiceAcct
	}
	if c.Session.Name == "" {
		return models.ConfigError{Message: "session name must not be empty"}
	}
	if c.Session.StorePath == "" {
		return models.ConfigError{Message: "session store path must not be empty"}
	}
	if c.TokenTimeoutSec <= 0 || c.WebhookTimeoutSec <= 0 || c.MediaTimeoutSec <= 0 {
		return models.ConfigError{Message: "timeouts must be positive"}
	}
	return nil
}
