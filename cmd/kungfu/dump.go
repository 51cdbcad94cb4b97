package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yongdono/kungfu/internal/journal"
	"github.com/yongdono/kungfu/internal/location"
)

func newDumpCommand() *cobra.Command {
	var from int64
	cmd := &cobra.Command{
		Use:   "dump <category/group/name/mode>...",
		Short: "Print every frame written by the given locations in merge order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			locs := make([]*location.Location, 0, len(args))
			for _, uname := range args {
				loc, err := location.Parse(uname)
				if err != nil {
					return err
				}
				locs = append(locs, loc)
			}
			pb, err := journal.NewPlayback(journal.PlaybackConfig{Root: loaded.Root, Locations: locs, FromTime: from})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return pb.Run(context.Background(), func(f journal.Frame) error {
				_, err := fmt.Fprintf(out, "%d %d %08x -> %08x %-22s %d bytes\n",
					f.GenTime, f.TriggerTime, f.Source, f.Dest, f.MsgType, len(f.Payload))
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Skip frames triggered before this time")
	return cmd
}
