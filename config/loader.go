package config

import (
	"errors"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the global application configuration
var Config AppConfig

// LoadAppConfig loads and validates the application configuration from config.yml
func LoadAppConfig() error {
	paths := []string{"config.yml", "/etc/ztm-departures/config.yml"}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	v := validator.New()
	if err := v.Struct(cfg.Server); err != nil {
		return err
	}
	if err := v.Struct(cfg.API); err != nil {
		return err
	}
	if err := v.Struct(cfg.Refresh); err != nil {
		return err
	}
	// stops are optional in the file; if present validate each
	for _, s := range cfg.Stops {
		if err := v.Struct(s); err != nil {
			return err
		}
	}
	Config = cfg
	if Config.Server.Port == 0 {
		Config.Server.Port = 16181
	}
	if Config.Display.MaxDepartures == 0 {
		Config.Display.MaxDepartures = 4
	}
	if Config.Display.Timezone == "" {
		Config.Display.Timezone = "Europe/Warsaw"
	}
	if Config.API.Key == "" {
		// .env is a convenience for local runs; absence is not an error
		_ = godotenv.Load()
		Config.API.Key = os.Getenv("ZTM_API_KEY")
	}
	if Config.API.Key == "" {
		return errors.New("no API key: set api.key in config.yml or the ZTM_API_KEY environment variable")
	}
	return nil
}

// SelectStop chooses a subscription by name; fallback to first.
func SelectStop(name string) (Stop, bool) {
	if name != "" {
		for _, s := range Config.Stops {
			if s.Name == name {
				return s, true
			}
		}
	}
	if len(Config.Stops) > 0 {
		return Config.Stops[0], true
	}
	return Stop{}, false
}
