package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/logger"
	"github.com/spigell/jobhound/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create or migrate the job store",
	Run: func(_ *cobra.Command, _ []string) {
		initDB()
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}

func initDB() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	st, err := store.Open(ctx, config.Store.DSN, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	notified, err := st.CountNotifications(ctx, "")
	if err != nil {
		logger.Fatal("counting notifications", zap.Error(err))
	}

	logger.Info("store is ready", zap.String("driver", st.Driver()), zap.Int("notifications", notified))
}
