package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "flowforge",
	Short: "FlowForge workflow automation engine",
	Long:  `FlowForge runs trigger-driven automation workflows (zaps).`,
}

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
