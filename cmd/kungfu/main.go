package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
)

func main() {
	root := &cobra.Command{
		Use:           "kungfu",
		Short:         "Journal based IPC core for trading apps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to JSON or YAML config")
	root.PersistentFlags().String("root", "runtime", "Runtime root when no config is given")

	root.AddCommand(newMasterCommand(), newDumpCommand(), newPingCommand())
	if err := root.Execute(); err != nil {
		logs.Errorf("kungfu: %+v", err)
		os.Exit(1)
	}
}
