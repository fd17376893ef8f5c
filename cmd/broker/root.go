package main

import (
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("cmd")

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "kolejka-broker",
		Short: "kolejka-broker mediates submissions between BaCa2 and a KOLEJKA execution cluster",
	}
)

func init() {
	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level")

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("BROKER")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	} else {
		viper.SetConfigName("broker-config")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		// config file is optional; flags and env can fill every key
		_ = viper.ReadInConfig()
	}
}

func initLogging() {
	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
		return
	}
	logging.SetAllLoggers(logging.LevelInfo)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(fmt.Errorf("executing command: %w", err))
	}
}
