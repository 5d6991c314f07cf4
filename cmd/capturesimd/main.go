// Command capturesimd runs a Capture Session Controller against the
// simulated device adapter, printing state and HDR progress to the
// console, so the capture pipeline can be exercised without real camera
// hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/motioncam/capturecore/bufferpool"
	"github.com/motioncam/capturecore/capturesession"
	"github.com/motioncam/capturecore/deviceadapter"
	"github.com/motioncam/capturecore/deviceadapter/devicesim"
	"github.com/motioncam/capturecore/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file (uses built-in defaults if empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	rawPreview := flag.Bool("raw-preview", false, "Set up for raw preview: leave the preview surface out of the repeating request's targets (raw frames still go to the buffer pool)")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting capturesimd",
		"instance_id", cfg.InstanceID,
		"sensor", fmt.Sprintf("%dx%d@%.0ffps", cfg.Sensor.Width, cfg.Sensor.Height, cfg.Sensor.FPS),
		"pool_capacity", cfg.Pool.Capacity,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool := bufferpool.NewPool(cfg.Pool.Capacity)
	for i := 0; i < cfg.Pool.Capacity; i++ {
		pool.AddBuffer(bufferpool.NewBuffer(cfg.Sensor.Width, cfg.Sensor.Height, cfg.Sensor.Width, "RAW16"))
	}

	adapter := devicesim.NewAdapter(cfg.Sensor.Width, cfg.Sensor.Height, cfg.Sensor.FPS, deviceadapter.DeviceDescription{
		MaxAFRegions:              1,
		MaxAERegions:              1,
		SupportsOIS:               true,
		SensorActiveArrayWidth:    int32(cfg.Sensor.Width),
		SensorActiveArrayHeight:   int32(cfg.Sensor.Height),
		ExposureCompensationRange: deviceadapter.Range{Min: -12, Max: 12},
	})

	listener := newConsoleListener()

	session := capturesession.New(adapter, pool, listener, cfg.InstanceID, deviceadapter.RawOutputConfig{
		Width:     cfg.Sensor.Width,
		Height:    cfg.Sensor.Height,
		MaxImages: capturesession.MaxBufferedRawImages,
	})
	session.Start()
	session.OpenCamera(*rawPreview)

	go demoHdrOnceActive(ctx, session, cfg.HDR)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutS) * time.Second
	done := make(chan struct{})
	go func() {
		session.CloseCamera()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("capture session closed")
	case <-time.After(shutdownTimeout):
		slog.Warn("capture session close timed out", "timeout", shutdownTimeout)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// demoHdrOnceActive submits one HDR bracket as soon as the session reaches
// ACTIVE, so a fresh checkout demonstrates the whole pipeline without any
// extra flags.
func demoHdrOnceActive(ctx context.Context, session *capturesession.Controller, hdrCfg config.HDRConfig) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if session.State() == capturesession.StateActive {
			session.CaptureHdr(hdrCfg.NumImages, hdrCfg.BaseISO, hdrCfg.BaseExposureNs,
				hdrCfg.AltISO, hdrCfg.AltExposureNs, nil, hdrCfg.OutputDir)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	slog.Warn("capture session never reached ACTIVE, skipping demo hdr capture")
}

// consoleListener prints session lifecycle and HDR outcomes to the
// console in color; everything else is left to the structured logger.
type consoleListener struct {
	state, warn, ok, fail *color.Color
}

func newConsoleListener() *consoleListener {
	return &consoleListener{
		state: color.New(color.FgCyan),
		warn:  color.New(color.FgYellow),
		ok:    color.New(color.FgGreen),
		fail:  color.New(color.FgRed),
	}
}

func (c *consoleListener) OnCameraStateChanged(state capturesession.SessionState) {
	c.state.Printf("session state -> %s\n", state)
}

func (c *consoleListener) OnCameraError(code int) {
	c.fail.Printf("camera error, code=%d\n", code)
}

func (c *consoleListener) OnCameraDisconnected() {
	c.fail.Println("camera disconnected")
}

func (c *consoleListener) OnCameraExposureStatus(iso int32, exposureTimeNs int64) {
	slog.Debug("exposure status", "iso", iso, "exposure_time_ns", exposureTimeNs)
}

func (c *consoleListener) OnCameraAutoExposureStateChanged(state deviceadapter.AEState) {
	slog.Debug("ae state changed", "state", state)
}

func (c *consoleListener) OnCameraAutoFocusStateChanged(state deviceadapter.AFState) {
	slog.Debug("af state changed", "state", state)
}

func (c *consoleListener) OnCameraHdrImageCaptureProgress(percent float64) {
	c.warn.Printf("hdr capture progress: %.0f%%\n", percent)
}

func (c *consoleListener) OnCameraHdrImageCaptureCompleted() {
	c.ok.Println("hdr capture completed")
}

func (c *consoleListener) OnCameraHdrImageCaptureFailed() {
	c.fail.Println("hdr capture failed")
}
