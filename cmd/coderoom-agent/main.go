package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/agent"
	"github.com/lumen-collab/coderoom/internal/channel"
	"github.com/lumen-collab/coderoom/internal/config"
	"github.com/lumen-collab/coderoom/internal/logging"
	"github.com/lumen-collab/coderoom/internal/publish"
	"github.com/lumen-collab/coderoom/internal/reconcile"
	"github.com/lumen-collab/coderoom/internal/rest"
	"github.com/lumen-collab/coderoom/internal/room"
	"github.com/lumen-collab/coderoom/internal/server"
	"github.com/lumen-collab/coderoom/internal/session"
	"github.com/lumen-collab/coderoom/internal/source"
	"github.com/lumen-collab/coderoom/internal/storage"
	"github.com/lumen-collab/coderoom/internal/subscription"
	"github.com/lumen-collab/coderoom/internal/version"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coderoom-agent",
		Short: "Collaborative code room synchronization agent",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Control API listen address")
	cmd.PersistentFlags().String("broker-url", defaults.GetString("broker.url"), "Realtime broker WebSocket URL")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Room server REST base URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("snapshot-source", defaults.GetString("snapshots.source"), "Snapshot source mode (push, poll)")
	cmd.PersistentFlags().String("room", "", "Room UUID to enter at startup")
	cmd.PersistentFlags().String("password", "", "Room password for the startup entry")
	cmd.PersistentFlags().String("create-title", "", "Create a room with this title instead of entering one")
	cmd.PersistentFlags().String("nickname", "", "Participant nickname announced to the room")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "broker.url", "broker-url")
	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "snapshots.source", "snapshot-source")
	bindFlag(cmd, "startup.room", "room")
	bindFlag(cmd, "startup.password", "password")
	bindFlag(cmd, "startup.create_title", "create-title")
	bindFlag(cmd, "startup.nickname", "nickname")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// snapshotSink forwards polled lists to the agent. It exists to break the
// construction cycle between the source and the agent.
type snapshotSink struct {
	agent *agent.Agent
}

func (s *snapshotSink) SyncSnapshots(list []room.Snapshot) {
	if s.agent != nil {
		s.agent.SyncSnapshots(list)
	}
}

func runAgent(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := storage.Open(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	apiClient, err := rest.NewClient(appConfig.APIBaseURL, logger)
	if err != nil {
		return err
	}

	gate, err := session.NewGate(session.GateConfig{
		Store:  store,
		API:    apiClient,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	roomState := reconcile.NewState()
	versions, err := version.NewMachine(roomState)
	if err != nil {
		return err
	}

	dispatcher, err := reconcile.NewDispatcher(reconcile.DispatcherConfig{
		State:   roomState,
		Fetcher: apiClient,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	realtime, err := channel.New(channel.Config{
		BrokerURL:            appConfig.BrokerURL,
		HeartbeatInterval:    appConfig.HeartbeatInterval,
		ReconnectDelay:       appConfig.ReconnectDelay,
		MaxReconnectAttempts: appConfig.MaxReconnectAttempts,
		Logger:               logger,
	})
	if err != nil {
		return err
	}

	registry, err := subscription.NewRegistry(subscription.RegistryConfig{
		Transport: realtime,
		Sink:      dispatcher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	publisher, err := publish.NewPublisher(publish.PublisherConfig{
		Transport: realtime,
		Guard:     versions,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	sink := &snapshotSink{}
	snapshotSource, err := source.New(source.Config{
		Mode:         appConfig.SnapshotSource,
		Lister:       apiClient,
		Sink:         sink,
		PollInterval: appConfig.PollInterval,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	syncAgent, err := agent.New(agent.Config{
		Gate:       gate,
		API:        apiClient,
		Votes:      store,
		Channel:    realtime,
		Registry:   registry,
		Dispatcher: dispatcher,
		State:      roomState,
		Versions:   versions,
		Publisher:  publisher,
		Source:     snapshotSource,
		Nickname:   viper.GetString("startup.nickname"),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	sink.agent = syncAgent

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Agent:  syncAgent,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := syncAgent.Start(signalCtx); err != nil {
		return err
	}
	defer syncAgent.Stop()

	if createTitle := viper.GetString("startup.create_title"); createTitle != "" {
		_, sharedURL, err := syncAgent.CreateRoom(signalCtx, createTitle, viper.GetString("startup.password"))
		if err != nil {
			return err
		}
		logger.Info("room ready to share", zap.String("shared_url", sharedURL))
	} else if startupRoom := viper.GetString("startup.room"); startupRoom != "" {
		if _, err := syncAgent.EnterRoom(signalCtx, startupRoom, viper.GetString("startup.password")); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control api starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
