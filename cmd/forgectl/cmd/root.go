package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "forgectl is a command line tool for operating the Docforge workflow coordinator",
	Long: `forgectl is the operator command-line interface for the Docforge
workflow coordination service.

Docforge coordinates multi-step document generation workflows executed by an
external agent runtime: it tracks lifecycle state, persists recovery
checkpoints, and raises alerts when the pipeline degrades.

Common workflows:

  Check a workflow's status:
    forgectl status <workflow-id>

  Recover a failed workflow from its latest checkpoint:
    forgectl recover <workflow-id>

  Recover from an explicit checkpoint:
    forgectl recover <workflow-id> --from-checkpoint 5

  List open alerts:
    forgectl alerts

  Resolve an alert:
    forgectl alerts resolve <alert-id>

  Check the composite system health:
    forgectl health

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    DOCFORGE_URL      API endpoint (default: http://localhost:8080)
    DOCFORGE_TOKEN    Bearer token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".forgectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DOCFORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.forgectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Docforge coordinator URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Bearer token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
