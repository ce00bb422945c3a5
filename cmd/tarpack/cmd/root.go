package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tarpack",
	Short: "Tarpack syncs directory trees to object storage as bounded tar containers",
	Long: `Tarpack mirrors a local directory tree into an object store, aggregating
small files into bounded tar containers so that trees with millions of tiny
files stay cheap to store and fast to diff.

Every run records what it synced in a durable manifest; the next run
re-derives a minimal diff against it and only touches the containers that
actually changed.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addStoreFlag(rootCmd)
	addLogLevelFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("compression", "none")
	viper.SetDefault("fast-compare", "mtime-size")

	if cfg := os.Getenv("TARPACK_CONFIG"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.tarpack")
		viper.AddConfigPath("/etc/tarpack")
		viper.SetConfigName("tarpack")
	}

	viper.SetEnvPrefix("tarpack")
	viper.AutomaticEnv() // read in environment variables that match
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}
}
