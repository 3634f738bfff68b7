package models

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

type GatewayConfig struct {
	Port         string
	BaseURL      string
	AssetBaseURL string
	WSURL        string
}

type MapsConfig struct {
	APIKey     string
	GeocodeKey string
	RouteURL   string
	GeocodeURL string
}

// LocationConfig drives the device-position sources. Timeouts and max-age are
// in seconds; the fallback coordinates are used when no position source works.
type LocationConfig struct {
	TimeoutSec     int
	MaxAgeSec      int
	IPLookupURL    string
	FallbackLat    float64
	FallbackLng    float64
	UnsupportedLat float64
	UnsupportedLng float64
}

type ClientConfig struct {
	StorePath string
	Token     string
}

type Config struct {
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Gateway  GatewayConfig
	Maps     MapsConfig
	Location LocationConfig
	Client   ClientConfig
}
