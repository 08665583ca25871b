// Command wildwatch-detect watches one camera and posts the alerts it raises
// to a wildwatch API server on behalf of a user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goahttp "goa.design/goa/v3/http"

	"github.com/NarenCandy/wild-animal-detection/internal/client"
	"github.com/NarenCandy/wild-animal-detection/internal/config"
	"github.com/NarenCandy/wild-animal-detection/internal/dispatch"
	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/metrics"
	"github.com/NarenCandy/wild-animal-detection/internal/objectstore"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline/strategies"
	"github.com/NarenCandy/wild-animal-detection/internal/stream"
)

func main() {
	var (
		configF     = flag.String("config", os.Getenv("WILDWATCH_CONFIG"), "Path to a YAML or TOML config file")
		streamAddrF = flag.String("stream-addr", ":8001", "Address serving the annotated camera feed (empty disables)")
		dbgF        = flag.Bool("debug", false, "Log API requests and responses")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[wildwatch-detect] ", log.Ltime)

	loaded, err := config.Load(*configF)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	for _, w := range loaded.Warnings {
		logger.Printf("config warning: %s", w)
	}
	cfg := loaded.Config

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var doer goahttp.Doer = &http.Client{Timeout: 15 * time.Second}
	if *dbgF {
		doer = goahttp.NewDebugDoer(doer)
	}
	apiClient, err := client.New(cfg.API.BaseURL, doer)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := authenticate(ctx, apiClient, cfg.API); err != nil {
		logger.Fatalf("%v", err)
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	eng := engine.New(engineCfg, nil)
	isHuman := func(d engine.Detection) bool { return eng.IsHuman(d.Class) }

	registry, err := cfg.Detectors()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	m := metrics.New()
	opts := []dispatch.Option{dispatch.WithHumanFilter(isHuman), dispatch.WithMetrics(m)}
	if cfg.Storage.Endpoint != "" {
		store, err := objectstore.New(cfg.ObjectStore())
		if err != nil {
			logger.Fatalf("%v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Printf("snapshot bucket unavailable: %v", err)
		}
		opts = append(opts, dispatch.WithSnapshots(store))
	}
	dispatcher := dispatch.New(cfg.DispatchConfig(), dispatch.NewRemoteSink(apiClient), opts...)

	provider := pipeline.NewFFmpegFrameProvider()
	manager := pipeline.NewDetectionPipelineManager(
		provider,
		registry,
		pipeline.NewEventBus(),
		strategies.Create,
		func(string) pipeline.Evaluator { return eng },
	)
	manager.SetGlobalConfig(cfg.Detection())
	manager.SetMetrics(m)
	manager.SubscribeResults(dispatcher)

	cam := cfg.Camera
	if err := provider.Start(cam.ID, cam.Device, cam.FPS, cam.Width, cam.Height); err != nil {
		logger.Fatalf("failed to start camera %s: %v", cam.ID, err)
	}
	if err := manager.StartCamera(cam.ID, nil); err != nil {
		logger.Fatalf("failed to start detection on %s: %v", cam.ID, err)
	}
	logger.Printf("watching camera %s (%s), posting alerts to %s", cam.ID, cam.Device, cfg.API.BaseURL)

	var srv *http.Server
	if *streamAddrF != "" {
		viewer := stream.NewRelay(provider, isHuman)
		manager.EventBus().SubscribeCamera(cam.ID, viewer)
		if err := viewer.Attach(cam.ID); err != nil {
			logger.Printf("live view unavailable: %v", err)
		}

		mux := goahttp.NewMuxer()
		mux.Handle("GET", "/video_feed", viewer.ServeHTTP)
		mux.Handle("GET", "/snapshot", viewer.ServeSnapshot)
		mux.Handle("GET", "/metrics", m.Handler().ServeHTTP)
		srv = &http.Server{Addr: *streamAddrF, Handler: mux, ReadHeaderTimeout: time.Second * 60}
		go func() {
			logger.Printf("camera feed listening on %q", *streamAddrF)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("camera feed stopped: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Printf("exiting")

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		cancelShutdown()
	}
	manager.Close()
	provider.StopAll()
	dispatcher.Close()
	logger.Println("exited")
}

// authenticate uses the configured token, or logs in with the configured
// credentials
func authenticate(ctx context.Context, c *client.Client, cfg config.APIConfig) error {
	if cfg.Token != "" {
		c.SetToken(cfg.Token)
		return nil
	}
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("API_TOKEN or API_EMAIL and API_PASSWORD are required")
	}
	if _, err := c.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("failed to log in as %s: %w", cfg.Email, err)
	}
	return nil
}
