package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"rescue-link/internal/shared/models"
	"rescue-link/internal/shared/util"
)

type Position struct {
	Lat      float64
	Lng      float64
	Accuracy float64
	At       time.Time
}

// DeviceProvider is the platform position source. A nil provider means the
// platform has no geolocation support at all.
type DeviceProvider interface {
	CurrentPosition(ctx context.Context, maxAge time.Duration) (Position, error)
	WatchPosition(ctx context.Context) (<-chan Position, error)
}

// Source resolves the civilian's position with a one-shot timeout/max-age
// policy, a coarse IP fallback and finally a fixed coordinate. It never fails.
type Source struct {
	device DeviceProvider
	httpc  *http.Client
	cfg    models.LocationConfig
	logger *util.Logger
}

func NewSource(device DeviceProvider, cfg models.LocationConfig, logger *util.Logger) *Source {
	return &Source{
		device: device,
		httpc:  &http.Client{Timeout: 5 * time.Second},
		cfg:    cfg,
		logger: logger,
	}
}

// Current returns the best available position right now.
func (s *Source) Current(ctx context.Context) Position {
	instance := "Source.Current"

	if s.device == nil {
		if pos, ok := s.ipLookup(ctx); ok {
			return pos
		}
		return Position{Lat: s.cfg.UnsupportedLat, Lng: s.cfg.UnsupportedLng, At: time.Now()}
	}

	timeout := time.Duration(s.cfg.TimeoutSec) * time.Second
	maxAge := time.Duration(s.cfg.MaxAgeSec) * time.Second

	deviceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := s.device.CurrentPosition(deviceCtx, maxAge)
	if err == nil {
		return pos
	}
	s.logger.Warn(instance, "device position failed: "+err.Error())

	if pos, ok := s.ipLookup(ctx); ok {
		return pos
	}
	return Position{Lat: s.cfg.FallbackLat, Lng: s.cfg.FallbackLng, At: time.Now()}
}

// Watch delivers continuous positions. Without device support the channel
// carries a single fallback position and closes.
func (s *Source) Watch(ctx context.Context) <-chan Position {
	if s.device != nil {
		if ch, err := s.device.WatchPosition(ctx); err == nil {
			return ch
		}
	}

	out := make(chan Position, 1)
	out <- s.Current(ctx)
	close(out)
	return out
}

type ipLookupResponse struct {
	Status string  `json:"status"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

func (s *Source) ipLookup(ctx context.Context) (Position, bool) {
	if s.cfg.IPLookupURL == "" {
		return Position{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.IPLookupURL, nil)
	if err != nil {
		return Position{}, false
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		s.logger.Warn("Source.ipLookup", "ip lookup failed: "+err.Error())
		return Position{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, false
	}

	var decoded ipLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Position{}, false
	}
	if decoded.Status != "success" {
		return Position{}, false
	}
	if decoded.Lat == 0 && decoded.Lon == 0 {
		return Position{}, false
	}

	return Position{Lat: decoded.Lat, Lng: decoded.Lon, At: time.Now()}, true
}
