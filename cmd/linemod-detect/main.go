package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jordanella.com/linemod/internal/config"
	"jordanella.com/linemod/internal/database"
	"jordanella.com/linemod/internal/detection"
	"jordanella.com/linemod/internal/events"
	"jordanella.com/linemod/internal/logging"
	"jordanella.com/linemod/internal/server"
	"jordanella.com/linemod/pkg/templates"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to an ini settings file (optional)")
	dbPath := flag.String("db", "", "Load objects from this model database")
	objectsDir := flag.String("objects", "", "Load objects from manifests instead of the database")
	framesDir := flag.String("frames", "", "Directory of <name>_color.png / <name>_depth.png frames")
	threshold := flag.Float64("threshold", -1, "Match threshold in percent (default from config)")
	serve := flag.Bool("serve", false, "Stream detections over websocket")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromINI(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *framesDir != "" {
		cfg.FramesDir = *framesDir
	}
	if *threshold >= 0 {
		cfg.Threshold = *threshold
	}
	if *serve {
		cfg.ServerEnabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := cfg.Logger("Detect")
	session, err := detection.NewSession(cfg.DetectionConfig(), logger.Child("session"))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	runLog := logger.WithContext(map[string]interface{}{"session_id": session.ID()})

	source, closeSource, err := objectSource(cfg, *objectsDir, logger)
	if err != nil {
		log.Fatalf("Failed to open object source: %v", err)
	}
	err = session.LoadFrom(source)
	closeSource()
	if err != nil {
		log.Fatalf("Failed to load objects: %v", err)
	}

	frames, err := templates.NewDirectorySource(cfg.FramesDir)
	if err != nil {
		log.Fatalf("Failed to open frames: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var messages chan any
	if cfg.ServerEnabled {
		messages = make(chan any, 16)
		srv := server.New(cfg.ServerAddr,
			func() map[string]any {
				return map[string]any{
					"session": session.Stats(),
					"faults":  session.Faults().Stats(),
				}
			},
			func() map[string]any {
				return map[string]any{
					"threshold": cfg.Threshold,
					"objects":   session.Store().ObjectIDs(),
				}
			},
			logger.Child("server"))
		// faults and frame timings go out next to the detections
		bus := events.NewEventBus(64, logger.Child("events"))
		defer bus.Stop()
		forward := func(e events.Event) {
			select {
			case messages <- e:
			default:
			}
		}
		bus.Subscribe(events.EventTypeFault, forward)
		bus.Subscribe(events.EventTypeFrameProcessed, forward)
		session.SetEventBus(bus)
		go func() {
			if err := srv.Run(ctx, messages); err != nil {
				logger.Error("server stopped", err)
				stop()
			}
		}()
	}

	out := json.NewEncoder(os.Stdout)
	frame := 0
	err = session.Run(ctx, frames, func(results []detection.Result) error {
		msg := server.NewFrameMessage(frame, results)
		frame++
		if messages != nil {
			select {
			case messages <- msg:
			default:
				runLog.Warn("websocket backlog full, dropping frame")
			}
		}
		return out.Encode(msg)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("Detection failed: %v", err)
	}

	stats := session.Stats()
	runLog.InfoWith("done", map[string]interface{}{
		"frames":    stats.FramesProcessed,
		"objects":   stats.Objects,
		"templates": stats.Templates,
	})

	// keep serving the last results until interrupted
	if cfg.ServerEnabled && ctx.Err() == nil {
		log.Printf("Frames exhausted, still serving on %s (Ctrl+C to exit)", cfg.ServerAddr)
		<-ctx.Done()
	}
}

// objectSource picks manifests when a directory is given, the model database otherwise
func objectSource(cfg *config.Config, objectsDir string, logger *logging.Logger) (detection.ObjectSource, func(), error) {
	if objectsDir != "" {
		registry := templates.NewObjectRegistry(objectsDir, logger.Child("manifests")).WithoutImageCache()
		if err := registry.LoadFromDirectory(objectsDir); err != nil {
			return nil, nil, err
		}
		return registry, func() {}, nil
	}

	db, err := database.OpenAndMigrate(cfg.DatabasePath, logger.Child("db"))
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}
