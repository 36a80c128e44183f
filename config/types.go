package config

// ServerConfig contains server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// APIConfig contains upstream ZTM API configuration
type APIConfig struct {
	Key              string `yaml:"key"`
	TimetableURL     string `yaml:"timetableURL" validate:"omitempty,url"`
	StopInfoURL      string `yaml:"stopInfoURL" validate:"omitempty,url"`
	TimeoutMS        int    `yaml:"timeoutMS" validate:"gte=0"`
	StopInfoTTLHours int    `yaml:"stopInfoTTLHours" validate:"gte=0"`
}

// RefreshConfig tunes the polling scheduler
type RefreshConfig struct {
	IntervalMinutes int      `yaml:"intervalMinutes" validate:"gte=0"`
	DailyAt         []string `yaml:"dailyAt" validate:"omitempty,dive,datetime=15:04"`
	JitterSeconds   int      `yaml:"jitterSeconds" validate:"gte=0"`
	RetrySeconds    int      `yaml:"retrySeconds" validate:"gte=0"`
}

// DisplayConfig shapes the HTTP API output
type DisplayConfig struct {
	MaxDepartures int    `yaml:"maxDepartures" validate:"gte=0"`
	Timezone      string `yaml:"timezone"`
}

// Stop represents a single stop/line subscription
type Stop struct {
	Name   string `yaml:"name"`
	StopID string `yaml:"stopId" validate:"required"`
	StopNr string `yaml:"stopNr" validate:"required,len=2"`
	Line   string `yaml:"line" validate:"required"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" validate:"required"`
	API     APIConfig     `yaml:"api"`
	Refresh RefreshConfig `yaml:"refresh"`
	Display DisplayConfig `yaml:"display"`
	Stops   []Stop        `yaml:"stops"`
}
