package main

import (
	"github.com/spf13/cobra"

	"github.com/yongdono/kungfu/internal/ops"
)

func loadConfig(cmd *cobra.Command) (ops.Loaded, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return ops.Loaded{}, err
	}
	if path != "" {
		return ops.Load(path)
	}
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return ops.Loaded{}, err
	}
	return ops.Default(root)
}
