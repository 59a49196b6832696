package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/booking"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/config"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/database"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/logging"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/scheduling"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reserva-api",
		Short: "Restaurant table reservation backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("sweep-interval", defaults.GetString("sweep.interval"), "Expiration sweep period")
	cmd.PersistentFlags().String("cors-origins", defaults.GetString("cors.origins"), "Comma-separated allowed CORS origins")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "sweep.interval", "sweep-interval")
	bindFlag(cmd, "cors.origins", "cors-origins")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	bookingService, err := booking.NewService(booking.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: booking.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	approvals, err := scheduling.NewApprovalScheduler(scheduling.ApprovalSchedulerConfig{
		Booking: bookingService,
		Clock:   time.Now,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	bookingService.SetApprovals(approvals)
	defer approvals.Stop()

	if err := approvals.RearmPending(ctx); err != nil {
		logger.Warn("failed to re-arm pending auto-confirmations", zap.Error(err))
	}

	sweeper, err := scheduling.NewSweeper(scheduling.SweeperConfig{
		Booking:  bookingService,
		Interval: appConfig.SweepInterval,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		BookingService: bookingService,
		Logger:         logger,
		CORSOrigins:    appConfig.CORSOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper.Start(signalCtx)
	defer sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
