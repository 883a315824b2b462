package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	grpcgo "google.golang.org/grpc"

	"minigolf/engine/internal/config"
	"minigolf/engine/internal/course"
	rpc "minigolf/engine/internal/grpc"
	httpapi "minigolf/engine/internal/http"
	"minigolf/engine/internal/input"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/networking"
	"minigolf/engine/internal/replay"
	"minigolf/engine/internal/shot"
	"minigolf/engine/internal/simulation"
)

const (
	shutdownTimeout       = 5 * time.Second
	replaySweepInterval   = time.Hour
	commandRateWindow     = time.Second
	commandRateLimit      = 20
	httpReadHeaderTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", logging.Error(err))
	}
	if err := srv.run(ctx); err != nil {
		logger.Error("server exited", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// server owns every long-running component of the simulator process.
type server struct {
	cfg     *config.Config
	logger  *logging.Logger
	started time.Time

	session  *shot.Session
	monitor  *simulation.TickMonitor
	loop     *simulation.Loop
	hub      *networking.Hub
	recorder *replay.Recorder
	cleaner  *replay.Cleaner

	httpServer *http.Server
	grpcServer *grpcgo.Server
}

// newServer wires the session, transports and replay recording from cfg.
func newServer(cfg *config.Config, logger *logging.Logger) (*server, error) {
	physicsCfg, err := cfg.Physics()
	if err != nil {
		return nil, err
	}
	c, err := course.Load(cfg.CoursePath)
	if err != nil {
		return nil, err
	}
	s := &server{cfg: cfg, logger: logger, started: time.Now(), monitor: simulation.NewTickMonitor()}

	//1.- Recording is optional; the recorder is just another session sink.
	opts := []shot.Option{
		shot.WithMaxShotTicks(cfg.MaxShotTicks),
		shot.WithMonitor(s.monitor),
		shot.WithLogger(logger),
	}
	if cfg.ReplayEnabled() {
		s.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxShots: cfg.ReplayMaxShots, MaxAge: cfg.ReplayMaxAge}, logger)
		s.recorder = replay.NewRecorder(cfg.ReplayDir, c, physicsCfg, cfg.TickHz,
			replay.WithCleaner(s.cleaner), replay.WithRecorderLogger(logger))
		opts = append(opts, shot.WithSink(s.recorder))
	}
	if s.session, err = shot.NewSession(physicsCfg, c, opts...); err != nil {
		return nil, err
	}

	//2.- Observers drive the session over websockets and watch frames fan back out.
	gate := input.NewGate(input.DefaultGateConfig, logger)
	s.hub = networking.NewHub(networking.HubConfig{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval,
		MaxClients:      cfg.MaxClients,
	}, s.session, gate, logger)
	s.session.AddSink(s.hub)
	s.loop = simulation.NewLoop(cfg.TickHz, simulation.StepperFunc(s.session.Step), s.monitor)

	handlerOpts := httpapi.Options{
		Logger:      logger,
		Readiness:   s,
		Session:     s.session,
		Monitor:     s.monitor,
		HubStats:    s.hub.Stats,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewCommandLimiter(commandRateWindow, commandRateLimit, nil),
	}
	if s.recorder != nil {
		handlerOpts.ReplayStats = s.recorder.Stats
		handlerOpts.StorageStats = s.cleaner.Stats
	}
	handlers := httpapi.NewHandlerSet(handlerOpts)
	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.Handle("/ws", s.hub)
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	//3.- The RPC service simulates isolated strokes on the same course and physics.
	service, err := rpc.NewService(physicsCfg, c, rpc.WithMaxShotTicks(cfg.MaxShotTicks), rpc.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s.grpcServer = grpcgo.NewServer(rpc.ServerOptions(cfg.GRPCSecret, logger)...)
	rpc.Register(s.grpcServer, service)
	return s, nil
}

// StartupError implements httpapi.ReadinessProvider. Startup failures abort the process,
// so a running server is always ready.
func (s *server) StartupError() error {
	return nil
}

// Uptime implements httpapi.ReadinessProvider.
func (s *server) Uptime() time.Duration {
	return time.Since(s.started)
}

// run listens on the configured addresses and blocks until ctx ends or a listener fails.
func (s *server) run(ctx context.Context) error {
	httpListener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcListener, err := net.Listen("tcp", s.cfg.GRPCAddress)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	return s.serve(ctx, httpListener, grpcListener)
}

func (s *server) serve(ctx context.Context, httpListener, grpcListener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	s.logger.Info("golf simulator listening",
		logging.String("http", httpListener.Addr().String()),
		logging.String("grpc", grpcListener.Addr().String()),
		logging.String("course", s.session.Course().Name),
		logging.Float64("tick_hz", s.cfg.TickHz),
		logging.Bool("recording", s.recorder != nil),
	)

	g.Go(func() error {
		s.loop.Run(gctx)
		return nil
	})
	if s.cleaner != nil {
		g.Go(func() error {
			s.cleaner.Run(gctx, replaySweepInterval)
			return nil
		})
	}
	g.Go(func() error {
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpcgo.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

// shutdown drains the transports and closes any open replay bundle.
func (s *server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	s.hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.grpcServer.GracefulStop()
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replay close: %w", err))
		}
	}
	return errors.Join(errs...)
}
