package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-agenda-server/internal/config"
	"course-agenda-server/internal/handler"
	"course-agenda-server/internal/metrics"
	"course-agenda-server/internal/optimistic"
	"course-agenda-server/internal/repository"
	"course-agenda-server/internal/service"
	"course-agenda-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("Server exited with error: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		return fmt.Errorf("connect to CouchDB: %w", err)
	}
	defer client.Close()

	if err := ensureDatabase(ctx, client, cfg.Database.Name); err != nil {
		return err
	}

	eventRepo := repository.NewEventRepository(client, cfg.Database.Name)
	orderedRepo := repository.NewOrderedItemRepository(client, cfg.Database.Name)

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	wsManager.SetMaxMessageSize(cfg.WebSocket.MaxMessageSize)

	var observers []optimistic.Observer
	if cfg.Metrics.Enabled {
		mo, err := metrics.NewMutationObserver(cfg.Metrics.Namespace, nil)
		if err != nil {
			return err
		}
		observers = append(observers, mo)
	}
	if cfg.Logging.Level == "debug" {
		observers = append(observers, optimistic.ObserverFunc(func(e optimistic.Event) {
			log.Printf("[optimistic] %s %s %s -> %s (%v) err=%v", e.Coordinator, e.Op, e.Target, e.Phase, e.Elapsed, e.Err)
		}))
	}

	agendaService := service.NewAgendaService(eventRepo, cfg.Schedule.Hours, wsManager, observers...)
	agendaService.AddObserver(websocket.NewMutationBroadcaster(wsManager, agendaService.TopicFor))

	curriculumService := service.NewCurriculumService(orderedRepo, wsManager, observers...)
	curriculumService.AddObserver(websocket.NewMutationBroadcaster(wsManager, curriculumService.TopicFor))

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(wsManager, agendaService, curriculumService))

	routerCfg := handler.RouterConfig{
		JWTSecret:   cfg.JWT.Secret,
		CORS:        cfg.CORS,
		MetricsPath: cfg.Metrics.Path,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = promhttp.Handler()
	}

	r := handler.NewRouter(routerCfg,
		handler.NewAgendaHandler(agendaService),
		handler.NewCurriculumHandler(curriculumService),
		handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize),
	)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsManager.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Printf("Starting Course Agenda Server on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ensureDatabase(ctx context.Context, client *kivik.Client, name string) error {
	exists, err := client.DBExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, name); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		log.Printf("Created database: %s", name)
	}

	if err := repository.EnsureIndexes(ctx, client, name); err != nil {
		return err
	}
	return nil
}
