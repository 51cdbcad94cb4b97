package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/yongdono/kungfu/internal/apprentice"
	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/pkg/uds"
)

func newPingCommand() *cobra.Command {
	var (
		uname   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Register a throwaway app, ping the master and deregister",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			loc, err := location.Parse(uname)
			if err != nil {
				return err
			}
			client, err := uds.NewClient(loaded.Master.SocketPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			rtt, err := ping(ctx, apprentice.Config{
				Locator:        location.NewLocator(loaded.Root),
				Location:       loc,
				Journal:        loaded.Journal,
				Notifier:       client,
				NotifyAttempts: 5,
			})
			if err != nil {
				return err
			}
			logs.Infof("pong from master in %s", rtt)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "as", "strategy/tools/ping/live", "Location to register as")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Give up after this long")
	return cmd
}

func ping(ctx context.Context, cfg apprentice.Config) (time.Duration, error) {
	a, err := apprentice.New(cfg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = a.Close() }()

	if err := a.Start(ctx); err != nil {
		return 0, err
	}
	if err := pollUntil(ctx, a, a.Ready); err != nil {
		return 0, errors.Wrap(err, "wait for master")
	}
	start := time.Now()
	if _, err := a.Ping(); err != nil {
		return 0, err
	}
	if err := pollUntil(ctx, a, func() bool { return a.Pongs() > 0 }); err != nil {
		return 0, errors.Wrap(err, "wait for pong")
	}
	rtt := time.Since(start)
	if _, err := a.Deregister(); err != nil {
		return rtt, err
	}
	return rtt, pollUntil(ctx, a, a.Ended)
}

func pollUntil(ctx context.Context, a *apprentice.Apprentice, cond func() bool) error {
	for !cond() {
		got, err := a.Step()
		if err != nil {
			return err
		}
		if got {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}
