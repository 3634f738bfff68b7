// Package geo wraps the external geocoding, routing and device-position
// services the client consumes.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"rescue-link/internal/civilian/route"
)

// Geocoder resolves a coordinate to a human address. Any failure resolves to
// an empty address; callers treat that as "no address yet".
type Geocoder struct {
	httpc   *http.Client
	baseURL string
	key     string
}

func NewGeocoder(baseURL, key string) *Geocoder {
	return &Geocoder{
		httpc:   &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		key:     key,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

func (g *Geocoder) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	if g.baseURL == "" || g.key == "" {
		return "", fmt.Errorf("geocoder not configured")
	}

	u := fmt.Sprintf("%s?latlng=%s&key=%s",
		g.baseURL,
		url.QueryEscape(fmt.Sprintf("%.6f,%.6f", lat, lng)),
		url.QueryEscape(g.key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode returned %d", resp.StatusCode)
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Status != "OK" || len(decoded.Results) == 0 {
		return "", fmt.Errorf("no geocode result")
	}

	return decoded.Results[0].FormattedAddress, nil
}

// RouteClient fetches a drivable path between two points.
type RouteClient struct {
	httpc   *http.Client
	baseURL string
	key     string
}

func NewRouteClient(baseURL, key string) *RouteClient {
	return &RouteClient{
		httpc:   &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		key:     key,
	}
}

type routeResponse struct {
	Routes []struct {
		Points []struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"points"`
	} `json:"routes"`
}

func (r *RouteClient) Route(ctx context.Context, origin, dest route.LatLng) ([]route.LatLng, error) {
	if r.baseURL == "" || r.key == "" {
		return nil, fmt.Errorf("routing not configured")
	}

	u := fmt.Sprintf("%s?origin=%.6f,%.6f&destination=%.6f,%.6f&key=%s",
		r.baseURL, origin.Lat, origin.Lng, dest.Lat, dest.Lng, url.QueryEscape(r.key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing returned %d", resp.StatusCode)
	}

	var decoded routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Routes) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	points := make([]route.LatLng, 0, len(decoded.Routes[0].Points))
	for _, p := range decoded.Routes[0].Points {
		points = append(points, route.LatLng{Lat: p.Lat, Lng: p.Lng})
	}
	return points, nil
}
