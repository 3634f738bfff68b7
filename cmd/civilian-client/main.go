package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"rescue-link/internal/civilian/apiclient"
	"rescue-link/internal/civilian/controller"
	"rescue-link/internal/civilian/geo"
	"rescue-link/internal/civilian/pin"
	"rescue-link/internal/civilian/session"
	"rescue-link/internal/civilian/store"
	"rescue-link/internal/civilian/transport"
	"rescue-link/internal/shared/config"
	"rescue-link/internal/shared/util"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 800
	defaultZoom           = 15
)

var errNoToken = errors.New("no session token configured (set RESCUE_CLIENT_TOKEN or seed the local store)")

func toLocation(p pin.Picked) session.Location {
	return session.Location{Lat: p.Lat, Lng: p.Lng, Address: p.Address}
}

func main() {
	logger := util.New()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("main", err)
	}

	local, err := store.Open(cfg.Client.StorePath)
	if err != nil {
		logger.Fatal("main", err)
	}
	defer local.Close()

	token := cfg.Client.Token
	if token == "" {
		if stored, ok, err := local.Token(); err == nil && ok {
			token = stored
		}
	}
	if token == "" {
		logger.Fatal("main", errNoToken)
	}
	if err := local.SaveToken(token); err != nil {
		logger.Warn("main", "failed to persist token: "+err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := apiclient.New(cfg.Gateway.BaseURL, token)

	streams, err := transport.Dial(ctx, cfg.Gateway.WSURL, token, logger)
	if err != nil {
		logger.Fatal("main", err)
	}
	defer streams.Close()

	ctrl := controller.New(controller.Config{
		API:     api,
		Streams: streams,
		Store:   local,
		Logger:  logger,
	})
	go ctrl.Run(ctx)
	defer ctrl.Close()

	geocoder := geo.NewGeocoder(cfg.Maps.GeocodeURL, cfg.Maps.GeocodeKey)
	resolver := pin.NewResolver(geocoder, func(p pin.Picked) {
		loc := toLocation(p)
		if ctrl.PickLocation(loc) {
			logger.Info("main", "destination confirmed: "+*p.Address)
		}
	}, pin.DefaultDebounce)
	defer resolver.Close()

	positions := geo.NewSource(nil, cfg.Location, logger)
	start := positions.Current(ctx)
	resolver.Update(pin.Viewport{
		CenterLat: start.Lat,
		CenterLng: start.Lng,
		Zoom:      defaultZoom,
		Width:     defaultViewportWidth,
		Height:    defaultViewportHeight,
	})

	if err := ctrl.Recover(ctx); err != nil {
		logger.Warn("main", "recovery failed: "+err.Error())
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("main", "shutting down civilian-client...")
}
