// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml and validated using struct tags.
// The API key may be kept out of the file and supplied through the
// ZTM_API_KEY environment variable (a .env file is honoured). The package
// supports multiple stop subscriptions and allows selection by name.
package config
