package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"sagaflow/activities"
	"sagaflow/engine"
	"sagaflow/engine/metrics"
	"sagaflow/eventbus"
	"sagaflow/httpapi"
	"sagaflow/persistence"
)

var (
	listenAddr     string
	dbConnString   string
	provisionURL   string
	asyncPoolSize  int
	skipCompensate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the HTTP server exposing POST /users",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().StringVar(&dbConnString, "db", "", "postgres connection string")
	serveCmd.Flags().StringVar(&provisionURL, "provision-url", "http://localhost:9090", "base URL of the downstream account-provisioning service")
	serveCmd.Flags().IntVar(&asyncPoolSize, "async-pool-size", 16, "size of the default async executor pool")
	serveCmd.Flags().BoolVar(&skipCompensate, "skip-compensation", false, "disable compensation on workflow failure (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	var engineCfg *engine.EngineConfig
	if configPath != "" {
		cfg, err := engine.LoadEngineConfig(configPath)
		if err != nil {
			return fmt.Errorf("load engine config: %w", err)
		}
		engineCfg = cfg
	}

	users, err := persistence.NewUserRepository(persistence.Config{ConnectionString: dbConnString})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer users.Close()

	provisioner := activities.NewAccountProvisioner(activities.ProvisionerConfig{BaseURL: provisionURL})
	bus := eventbus.NewInMemoryBus()
	collector := metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)

	d := &deps{
		logger:           logger,
		users:            users,
		provisioner:      provisioner,
		bus:              bus,
		idempotency:      activities.NewInMemoryIdempotencyChecker(),
		observer:         activities.NewLoggingObserver(logger),
		metrics:          collector,
		engineConfig:     engineCfg,
		skipCompensation: skipCompensate,
		asyncPoolSize:    asyncPoolSize,
	}

	router := httpapi.NewRouter(d.runUserCreationSaga, logger)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("sagaflow server starting", "addr", listenAddr)
	return router.Run(listenAddr)
}
