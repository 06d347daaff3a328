package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
)

var Version = "dev"

var (
	envFile string
	log     *logger.Logger
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "table-settlement",
		Short:   "Dine-in table sessions, orders and payment settlement",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			envErr := godotenv.Load(envFile)
			log = logger.NewLogger()
			if envErr != nil {
				log.Warn("ENV", "Error loading "+envFile+" file, using environment variables")
			}
			cfg = config.Load()
			otel.SetTextMapPropagator(propagation.TraceContext{})
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(syncCmd())

	err := rootCmd.Execute()
	if log != nil {
		log.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
