package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AaronLay10/questgraph/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "questgraph",
	Short: "questgraph - task graph engine",
	Long: `questgraph runs a graph of tasks and conditions, propagating
success and failure along its edges while external events from MQTT and
the HTTP API move objects, settle conditions and modify containers.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(orderCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "engine.yaml", "engine config file")
	rootCmd.PersistentFlags().String("graph", "", "graph file (overrides engine.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")

	viper.BindPFlag("graph", rootCmd.PersistentFlags().Lookup("graph"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig lets QUESTGRAPH_* environment variables override engine.yaml,
// e.g. QUESTGRAPH_API_PORT or QUESTGRAPH_LOG_LEVEL.
func initConfig() {
	viper.SetEnvPrefix("questgraph")
	viper.SetEnvKeyReplacer(newEnvReplacer())
	viper.AutomaticEnv()
}
