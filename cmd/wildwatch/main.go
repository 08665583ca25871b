package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/NarenCandy/wild-animal-detection/internal/api"
	"github.com/NarenCandy/wild-animal-detection/internal/auth"
	"github.com/NarenCandy/wild-animal-detection/internal/config"
	"github.com/NarenCandy/wild-animal-detection/internal/database"
	"github.com/NarenCandy/wild-animal-detection/internal/dispatch"
	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/events"
	"github.com/NarenCandy/wild-animal-detection/internal/metrics"
	"github.com/NarenCandy/wild-animal-detection/internal/notify"
	"github.com/NarenCandy/wild-animal-detection/internal/objectstore"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline/strategies"
	"github.com/NarenCandy/wild-animal-detection/internal/services"
	"github.com/NarenCandy/wild-animal-detection/internal/stream"
	"github.com/NarenCandy/wild-animal-detection/internal/ws"
)

func main() {
	// Define command line flags, add any other flag required to configure the
	// service.
	var (
		configF   = flag.String("config", os.Getenv("WILDWATCH_CONFIG"), "Path to a YAML or TOML config file")
		domainF   = flag.String("domain", "", "Host domain name (overrides the configured host)")
		httpPortF = flag.String("http-port", "", "HTTP port (overrides the configured port)")
		secureF   = flag.Bool("secure", false, "Use secure scheme (https)")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	// Setup logger. Replace logger with your own log package of choice.
	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[wildwatch] ", log.Ltime)
	}

	loaded, err := config.Load(*configF)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	for _, w := range loaded.Warnings {
		logger.Printf("config warning: %s", w)
	}
	cfg := loaded.Config

	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("failed to migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	m := metrics.New()
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	hub := ws.NewAlertHub()
	m.RegisterGauge("wildwatch_ws_clients", "Connected websocket clients", func() float64 {
		return float64(hub.ClientCount())
	})

	// Notifications
	var notifier notify.Multi
	{
		oneSignal := cfg.OneSignal()
		if oneSignal.Enabled {
			notifier = append(notifier, notify.NewOneSignal(oneSignal))
		}
		telegram := cfg.Telegram()
		if telegram.Enabled {
			notifier = append(notifier, notify.NewTelegram(telegram))
		}
		if len(notifier) == 0 {
			logger.Printf("no notifier configured, alerts are only stored")
		}
	}

	// Event streaming through the outbox
	var (
		producer *events.Producer
		topic    string
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer producer.Close()
		topic = cfg.Kafka.Topic

		relay := events.NewOutboxRelay(db, producer, cfg.Kafka.RelayInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	}

	checks := map[string]services.Pinger{"database": db}

	// Snapshot storage
	var store *objectstore.Store
	if cfg.Storage.Endpoint != "" {
		store, err = objectstore.New(cfg.ObjectStore())
		if err != nil {
			logger.Fatalf("%v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Printf("snapshot bucket unavailable: %v", err)
		}
		checks["storage"] = store
	}

	// Decision engine for the monitored camera
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	eng := engine.New(engineCfg, nil)
	m.RegisterGauge("wildwatch_tracked_classes", "Classes with alert state", func() float64 {
		return float64(eng.State().Len())
	})
	isHuman := func(d engine.Detection) bool { return eng.IsHuman(d.Class) }

	registry, err := cfg.Detectors()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	checks["detector"] = services.PingFunc(func(context.Context) error {
		if len(registry.GetHealthyByNames(cfg.Detector.Backends)) == 0 {
			return errors.New("no healthy detector")
		}
		return nil
	})

	provider := pipeline.NewFFmpegFrameProvider()
	pipelineManager := pipeline.NewDetectionPipelineManager(
		provider,
		registry,
		pipeline.NewEventBus(),
		strategies.Create,
		func(string) pipeline.Evaluator { return eng },
	)
	pipelineManager.SetGlobalConfig(cfg.Detection())
	pipelineManager.SetMetrics(m)

	// Initialize the services.
	alertSvc := services.NewAlertService(db, db, eng.Classifier(), notifier, hub, m,
		services.AlertServiceConfig{Topic: topic})

	dispatchOpts := []dispatch.Option{
		dispatch.WithDecisionPublisher(hub),
		dispatch.WithHumanFilter(isHuman),
		dispatch.WithMetrics(m),
	}
	if store != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithSnapshots(store))
	}
	dispatcher := dispatch.New(cfg.DispatchConfig(), dispatch.NewLocalSink(alertSvc), dispatchOpts...)
	viewer := stream.NewRelay(provider, isHuman)
	pipelineManager.SubscribeResults(dispatcher)
	pipelineManager.EventBus().SubscribeCamera(cfg.Camera.ID, viewer)

	monitorSvc := services.NewMonitorService(services.MonitorDeps{
		Camera: services.CameraSource{
			ID:     cfg.Camera.ID,
			Device: cfg.Camera.Device,
			FPS:    cfg.Camera.FPS,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
		},
		Capture:   provider,
		Detection: pipelineManager,
		Owner:     dispatcher,
		Viewer:    viewer,
		State:     eng.State().Snapshot,
	})

	if cfg.Database.Retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alertSvc.RunRetention(ctx, cfg.Database.Retention, cfg.Database.RetentionInterval)
		}()
	}

	svc := api.Services{
		Accounts:  services.NewAccountService(db, jwtManager),
		Alerts:    alertSvc,
		Monitor:   monitorSvc,
		Health:    services.NewHealthService(checks),
		Auth:      jwtManager,
		Metrics:   m.Handler(),
		VideoFeed: viewer,
		Snapshot:  http.HandlerFunc(viewer.ServeSnapshot),
		AlertFeed: ws.NewHandler(hub),
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	u := &url.URL{Scheme: "http", Host: cfg.Addr()}
	if *secureF {
		u.Scheme = "https"
	}
	if *domainF != "" {
		u.Host = net.JoinHostPort(*domainF, u.Port())
	}
	if *httpPortF != "" {
		h, _, err := net.SplitHostPort(u.Host)
		if err != nil {
			logger.Fatalf("invalid URL %#v: %s\n", u.Host, err)
		}
		u.Host = net.JoinHostPort(h, *httpPortF)
	}
	handleHTTPServer(ctx, u, svc, &wg, errc, logger, *dbgF || cfg.Server.Debug)

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	monitorSvc.Close()
	dispatcher.Close()
	pipelineManager.Close()
	provider.StopAll()
	hub.Close()

	wg.Wait()
	logger.Println("exited")
}
