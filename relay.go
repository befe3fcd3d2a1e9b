package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChatRelay/global/config"
	"ChatRelay/logger"
	"ChatRelay/middleware"
	"ChatRelay/service/api"
	"ChatRelay/service/bus"
	"ChatRelay/service/chat"
	"ChatRelay/service/chat/handlers"
	"ChatRelay/service/gate"
	"ChatRelay/service/metrics"
	"ChatRelay/service/rpc"
	"ChatRelay/service/storage"
	rstore "ChatRelay/service/storage/redis"
	"ChatRelay/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const grpcReadyWait = 5 * time.Second

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chat-relay",
		Short:         "Real-time chat relay",
		Long:          "Authenticates websocket clients, tracks room membership and relays chat events between relay processes over a shared bus.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.Int("port", 0, "HTTP port (PORT)")
	f.String("relay-id", "", "relay id (RELAY_ID)")
	f.String("bus", "", "bus url: memory://, nats://, redis://, kafka:// (BUS_URL)")
	f.String("grpc-addr", "", "gRPC health listen address (GRPC_ADDR)")
	f.String("log-level", "", "debug|info|warn|error (LOG_LEVEL)")
	f.String("log-format", "", "console|json (LOG_FORMAT)")

	cmd.AddCommand(newTokenCmd())
	return cmd
}

// loadConfig reads the environment, applies flags that were set, then validates.
func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	cfg, err := config.Parse()
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	strs := map[string]*string{
		"relay-id":   &cfg.RelayID,
		"bus":        &cfg.BusURL,
		"grpc-addr":  &cfg.GRPCAddr,
		"log-level":  &cfg.LogLevel,
		"log-format": &cfg.LogFormat,
	}
	for name, dst := range strs {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	return cfg, cfg.Validate()
}

func runRelay(ctx context.Context, cfg config.AppConfig) (err error) {
	gin.SetMode(gin.ReleaseMode)
	log := logger.Named("main").With(zap.String("relay", cfg.RelayID))

	driver, endpoints, err := cfg.Bus()
	if err != nil {
		return err
	}
	tr, err := bus.Dial(driver, endpoints, bus.DialOptions{
		RelayID:        cfg.RelayID,
		PublishTimeout: cfg.BusPublishTimeout,
	})
	if err != nil {
		return err
	}
	m := metrics.New()
	b := bus.New(tr, bus.Options{
		RelayID:        cfg.RelayID,
		QueueSize:      cfg.BusQueueSize,
		PublishTimeout: cfg.BusPublishTimeout,
		DedupeTTL:      cfg.BusDedupeTTL,
		Observer:       m,
	})
	// 先停 HTTP（断开连接会发布 offline），再关 bus
	defer func() { err = multierr.Append(err, b.Close()) }()

	var presence *storage.Presence
	if cfg.RedisURL != "" {
		rdb, rerr := rstore.FromURL(cfg.RedisURL)
		if rerr != nil {
			return rerr
		}
		defer rdb.Close()
		presence = storage.NewPresence(rdb, cfg.RelayID, cfg.PresenceTTL)
	}

	srv, err := chat.NewServer(chat.Options{
		Gate: gate.New(cfg.JWTSecret, cfg.JWTAlgorithm),
		Bus:  b,
		API: api.NewClient(api.Config{
			BaseURL:      cfg.APIBaseURL,
			MessagesPath: cfg.APIMessagesPath,
			Timeout:      cfg.APITimeout,
		}),
		Metrics:  m,
		Presence: presence,
		IDs:      ids.NewGenerator(cfg.NodeID),
		Origins:  middleware.ParseOrigins(cfg.CORSOrigin),
		Conn: chat.ConnConf{
			SendQueue:    cfg.SendQueueSize,
			PingInterval: cfg.PingInterval,
			PongWait:     cfg.PongWait,
			WriteWait:    cfg.WriteWait,
			MaxMessage:   cfg.MaxMessageBytes,
		},
		Manager: chat.ManagerConf{MaxPerUser: cfg.MaxConnsPerUser},
	})
	if err != nil {
		return err
	}
	if err := handlers.RegisterAll(srv); err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	log.Info("bus started", zap.String("driver", driver), zap.Strings("endpoints", endpoints))

	var grpcLn net.Listener
	if cfg.GRPCAddr != "" {
		if grpcLn, err = rpc.Listen(cfg.GRPCAddr); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Addr()) })
	if grpcLn != nil {
		hs := rpc.NewHealthServer()
		g.Go(func() error { return hs.Serve(gctx, grpcLn) })
		g.Go(func() error {
			// 自检一次，只记日志，不影响主流程
			wctx, cancel := context.WithTimeout(gctx, grpcReadyWait)
			defer cancel()
			target := rpc.LocalTarget(grpcLn.Addr())
			if werr := rpc.WaitForHealth(wctx, target, rpc.RelayService); werr != nil {
				if gctx.Err() == nil {
					log.Warn("grpc health not answering", zap.String("target", target), zap.Error(werr))
				}
				return nil
			}
			log.Info("grpc health serving", zap.String("target", target))
			return nil
		})
	}
	err = g.Wait()
	log.Info("relay shut down", zap.Error(err))
	return err
}
