package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/facecam/internal/annotate"
	"github.com/dj-oyu/facecam/internal/capture"
	"github.com/dj-oyu/facecam/internal/detect"
	"github.com/dj-oyu/facecam/internal/emitter"
	"github.com/dj-oyu/facecam/internal/logger"
	"github.com/dj-oyu/facecam/internal/metrics"
	"github.com/dj-oyu/facecam/internal/session"
	"github.com/dj-oyu/facecam/internal/webmonitor"
)

func main() {
	webCfg := webmonitor.DefaultConfig()
	sessCfg := session.DefaultConfig()
	mqttCfg := emitter.DefaultConfig()

	var (
		sourceSpec    string
		sourceFPS     float64
		intervalMS    int64
		detectTimeout time.Duration
		autostart     bool
		logLevel      string
		logColor      bool
	)

	flag.StringVar(&webCfg.Addr, "http", webCfg.Addr, "HTTP server address")
	flag.IntVar(&webCfg.TargetFPS, "fps", webCfg.TargetFPS, "MJPEG frame rate of /stream")
	flag.StringVar(&sourceSpec, "source", "pattern", "Capture source (pattern, http(s)://mjpeg, dir:<path>)")
	flag.Float64Var(&sourceFPS, "source-fps", 15, "Frame rate of pattern and dir sources")
	flag.StringVar(&sessCfg.BaseURL, "base-url", sessCfg.BaseURL, "Detector service base URL")
	flag.Int64Var(&intervalMS, "interval-ms", sessCfg.IntervalMS(), "Capture interval in ms (min 200)")
	flag.BoolVar(&sessCfg.Mirror, "mirror", sessCfg.Mirror, "Mirror the live view")
	flag.DurationVar(&sessCfg.AcquireTimeout, "acquire-timeout", sessCfg.AcquireTimeout, "Camera acquisition timeout")
	flag.DurationVar(&detectTimeout, "detect-timeout", 5*time.Second, "Detector request timeout")
	flag.BoolVar(&autostart, "autostart", false, "Start the camera at launch")
	flag.StringVar(&mqttCfg.Broker, "mqtt-broker", "", "MQTT broker (host:port); empty disables MQTT")
	flag.StringVar(&mqttCfg.TopicPrefix, "mqtt-topic", mqttCfg.TopicPrefix, "MQTT topic prefix")
	flag.StringVar(&mqttCfg.ClientID, "mqtt-client-id", mqttCfg.ClientID, "MQTT client ID")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	source, err := capture.ParseSource(sourceSpec, sourceFPS)
	if err != nil {
		log.Fatalf("Invalid source: %v", err)
	}
	sessCfg.Interval = session.FloorInterval(time.Duration(intervalMS) * time.Millisecond)

	m := metrics.New()
	client := detect.NewClient(detectTimeout)
	controller := session.NewController(sessCfg, session.Options{
		Source:   source,
		Detector: client,
		Renderer: annotate.NewRenderer(capture.DefaultIdeal),
		Metrics:  m,
	})

	var mqtt *emitter.MQTTEmitter
	if mqttCfg.Broker != "" {
		mqtt = emitter.New(mqttCfg, m)
		if err := mqtt.Connect(); err != nil {
			logger.Warn("Main", "MQTT disabled: %v", err)
			mqtt = nil
		} else {
			controller.AddSink(mqtt)
			controller.OnStatus(func(st session.Status) { mqtt.PublishStatus(st) })
		}
	}

	server, err := webmonitor.NewServer(webCfg, controller, client)
	if err != nil {
		log.Fatalf("Failed to create monitor: %v", err)
	}

	httpServer := &http.Server{
		Addr:              webCfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	logger.Info("Main", "Facecam monitor listening on %s", webCfg.Addr)
	logger.Info("Main", "Source: %s, detector: %s, interval: %v, mirror: %v",
		source.Name(), controller.Config().BaseURL, controller.Config().Interval, sessCfg.Mirror)
	logger.Info("Main", "Log level: %s", level)

	if autostart {
		if err := controller.Start(context.Background()); err != nil {
			logger.Error("Main", "Autostart failed: %v", err)
		}
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	controller.Stop()
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("Main", "Error during shutdown: %v", err)
	}
	if mqtt != nil {
		mqtt.Close()
	}

	logger.Info("Main", "Stopped")
}
