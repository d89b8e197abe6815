package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ptzctl/internal/config"
	"ptzctl/internal/panasonic"
	"ptzctl/internal/preset"
	"ptzctl/internal/ptz"
	"ptzctl/internal/server"
	"ptzctl/internal/sim"
	"ptzctl/internal/visca"
)

func main() {
	// Command line flags override the config file
	configPath := flag.String("config", "", "YAML config file")
	listenAddr := flag.String("listen", "", "HTTP listen address (default :8080)")
	deviceType := flag.String("device", "", "Device type: visca, panasonic or sim")
	viscaAddr := flag.String("visca", "", "VISCA address (UDP/TCP: host:port, serial: device path)")
	viscaProto := flag.String("visca-proto", "", "VISCA protocol (udp, tcp or serial)")
	panasonicAddr := flag.String("panasonic", "", "Panasonic camera address")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	noCalibrate := flag.Bool("no-calibrate", false, "Skip hard origin and go-home on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *viscaAddr != "" {
		cfg.Device.Type = "visca"
		cfg.Device.Address = *viscaAddr
	}
	if *viscaProto != "" {
		cfg.Device.Protocol = *viscaProto
	}
	if *panasonicAddr != "" {
		cfg.Device.Type = "panasonic"
		cfg.Device.Address = *panasonicAddr
	}
	if *deviceType != "" {
		cfg.Device.Type = *deviceType
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *noCalibrate {
		cfg.CalibrateOnStart = false
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	dial := dialer(cfg, logger)

	// A head that is not reachable yet is picked up by the server's reconnect loop.
	var dev ptz.Device
	var limits map[ptz.Axis]ptz.AxisModel
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if d, err := dial(ctx); err != nil {
		logger.Warn("device not reachable, will retry", "type", cfg.Device.Type, "address", cfg.Device.Address, "error", err)
	} else {
		dev = d
		if q, ok := d.(ptz.LimitQuerier); ok {
			if limits, err = q.QueryLimits(ctx); err != nil {
				logger.Warn("failed to query axis limits", "error", err)
			}
		}
	}
	cancel()

	model, err := cfg.Model(limits)
	if err != nil {
		logger.Error("invalid axis model", "error", err)
		os.Exit(1)
	}

	presets, err := preset.NewMemoryStore(cfg.Presets)
	if err != nil {
		logger.Error("invalid presets", "error", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		ListenAddr:         cfg.Listen,
		ControlProtocol:    cfg.Device.Type,
		CalibrateOnConnect: cfg.CalibrateOnStart,
	}, presets, server.WithLogger(logger), server.WithDialer(dial))

	opts, err := cfg.Options()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	opts = append(opts, ptz.WithLogger(logger), ptz.WithCommitHook(srv.BroadcastPose))
	ctrl, err := ptz.New(model, dev, opts...)
	if err != nil {
		logger.Error("failed to create controller", "error", err)
		os.Exit(1)
	}
	srv.Attach(ctrl)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		srv.Stop()
	}()

	logger.Info("PTZ position server",
		"listen", cfg.Listen,
		"device", cfg.Device.Type,
		"address", cfg.Device.Address,
		"pan", model.Pan, "tilt", model.Tilt, "zoom", model.Zoom)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
	}

	ctrl.Close()
	if d := ctrl.Bind(nil); d != nil {
		d.Close()
	}
}

// dialer returns a function that opens the configured device.
func dialer(cfg config.Config, logger *slog.Logger) server.Dialer {
	dc := cfg.Device
	return func(ctx context.Context) (ptz.Device, error) {
		switch dc.Type {
		case "panasonic":
			d, err := panasonic.New(panasonic.Config{Address: dc.Address})
			if err != nil {
				return nil, err
			}
			return d, nil
		case "sim":
			model, err := cfg.Model(nil)
			if err != nil {
				return nil, err
			}
			return sim.New(model, sim.WithLogger(logger)), nil
		default:
			d, err := visca.Dial(visca.Config{
				Address:  dc.Address,
				Protocol: dc.Protocol,
				Baud:     dc.Baud,
				Camera:   dc.Camera,
			})
			if err != nil {
				return nil, err
			}
			return d, nil
		}
	}
}
