package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treemana/quickdot/config"
	"github.com/treemana/quickdot/log"
)

type rootFlags struct {
	config string
}

var (
	rf  rootFlags
	cfg *config.Config
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "quickdot",
		Short:             "Inspect, age and cache raw DNS messages.",
		PersistentPreRunE: initialize,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVarP(&rf.config, "config", "c", "", "config file, ./quickdot.json or ./quickdot.yaml when empty")
	rootCmd.AddCommand(
		newInspectCmd(),
		newPatchCmd(),
		newLookupCmd(),
		newServeCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func main() {
	err := newRootCmd().Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func initialize(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(rf.config); err != nil {
		return err
	}
	return initLog()
}

func initLog() error {
	if err := log.Init(cfg.Log.LogConfig()); err != nil {
		fmt.Println("log init error", err)
		return err
	}
	return nil
}
