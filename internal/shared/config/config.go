package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"rescue-link/internal/shared/models"
)

// LoadConfig reads a flat two-level YAML-ish file. Values of the form
// ${ENV_VAR:-default} are substituted from the environment.
func LoadConfig(filename string) (*models.Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := defaults()
	var section string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !strings.Contains(line, ":") {
			continue
		}

		if strings.HasSuffix(line, ":") {
			section = strings.TrimSuffix(line, ":")
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if strings.HasPrefix(val, "${") {
			inside := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			parts := strings.SplitN(inside, ":-", 2)

			envVar := parts[0]
			defVal := ""
			if len(parts) == 2 {
				defVal = parts[1]
			}

			if v, ok := os.LookupEnv(envVar); ok {
				val = v
			} else {
				val = defVal
			}
		}

		apply(cfg, section, key, val)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *models.Config {
	return &models.Config{
		Location: models.LocationConfig{
			TimeoutSec: 10,
			MaxAgeSec:  10,
			// country centroid when geolocation is unsupported, capital when it errors
			UnsupportedLat: 7.8731,
			UnsupportedLng: 80.7718,
			FallbackLat:    6.9271,
			FallbackLng:    79.8612,
		},
	}
}

func apply(cfg *models.Config, section, key, val string) {
	switch section {
	case "database":
		switch key {
		case "host":
			cfg.Database.Host = val
		case "port":
			cfg.Database.Port = val
		case "user":
			cfg.Database.User = val
		case "password":
			cfg.Database.Password = val
		case "database":
			cfg.Database.Database = val
		}
	case "rabbitmq":
		switch key {
		case "host":
			cfg.RabbitMQ.Host = val
		case "port":
			cfg.RabbitMQ.Port = val
		case "user":
			cfg.RabbitMQ.User = val
		case "password":
			cfg.RabbitMQ.Password = val
		}
	case "gateway":
		switch key {
		case "port":
			cfg.Gateway.Port = val
		case "base_url":
			cfg.Gateway.BaseURL = val
		case "asset_base_url":
			cfg.Gateway.AssetBaseURL = val
		case "ws_url":
			cfg.Gateway.WSURL = val
		}
	case "maps":
		switch key {
		case "api_key":
			cfg.Maps.APIKey = val
		case "geocode_key":
			cfg.Maps.GeocodeKey = val
		case "route_url":
			cfg.Maps.RouteURL = val
		case "geocode_url":
			cfg.Maps.GeocodeURL = val
		}
	case "location":
		switch key {
		case "timeout_sec":
			cfg.Location.TimeoutSec = atoiOr(val, cfg.Location.TimeoutSec)
		case "max_age_sec":
			cfg.Location.MaxAgeSec = atoiOr(val, cfg.Location.MaxAgeSec)
		case "ip_lookup_url":
			cfg.Location.IPLookupURL = val
		case "fallback_lat":
			cfg.Location.FallbackLat = atofOr(val, cfg.Location.FallbackLat)
		case "fallback_lng":
			cfg.Location.FallbackLng = atofOr(val, cfg.Location.FallbackLng)
		}
	case "client":
		switch key {
		case "store_path":
			cfg.Client.StorePath = val
		case "token":
			cfg.Client.Token = val
		}
	}
}

func atoiOr(val string, def int) int {
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func atofOr(val string, def float64) float64 {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}
