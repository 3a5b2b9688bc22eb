package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/UniQw/jobmanager-go/internal/api"
	"github.com/UniQw/jobmanager-go/internal/reachability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func workerCmd() *cobra.Command {
	var (
		apiAddr     string
		concurrency int
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Run sync jobs and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("api-addr") {
				a.cfg.API.Addr = apiAddr
			}
			if cmd.Flags().Changed("concurrency") {
				a.cfg.Manager.Concurrency = concurrency
			}

			network := jobmanager.NewReachabilityFlag(true)
			m := a.manager(network, jobmanager.WithObserver(jobmanager.ObserverFunc(
				func(info jobmanager.JobInfo, state jobmanager.State, err error) {
					ev := a.log.Info()
					if state == jobmanager.StateFailed {
						ev = a.log.Warn().Err(err)
					}
					ev.Str("id", info.ID).Str("key", info.FactoryKey).Int("attempt", info.Attempt).
						Str("state", state.String()).Msg("job finished")
				})))
			m.Use(timing(a.deps.Logger))
			if err := m.Start(ctx); err != nil {
				return err
			}
			defer m.Stop()

			g, gctx := errgroup.WithContext(ctx)
			srv := api.NewServer(m, a.syncJob, network, a.log)
			g.Go(func() error { return srv.Run(gctx, a.cfg.API.Addr) })
			if addr := a.cfg.Groups.ProbeAddr; addr != "" {
				probe := reachability.NewProbe(addr, a.cfg.Groups.ProbeInterval, network, a.deps.Logger)
				g.Go(func() error { return probe.Run(gctx) })
			}
			a.log.Info().Msgf("worker started: namespace=%s concurrency=%d", a.cfg.Redis.Namespace, a.cfg.Manager.Concurrency)
			err = g.Wait()
			a.log.Info().Msg("worker stopping")
			return err
		},
	}

	command.Flags().StringVar(&apiAddr, "api-addr", ":8080", "Admin API listen address")
	command.Flags().IntVar(&concurrency, "concurrency", 4, "Number of job workers")
	return command
}

// timing logs start/end and duration for each job attempt.
func timing(l jobmanager.Logger) jobmanager.Middleware {
	return func(next jobmanager.RunFunc) jobmanager.RunFunc {
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)
			info, _ := jobmanager.RunInfoFrom(ctx)
			if err != nil {
				l.Warnf("attempt failed: id=%s attempt=%d dur=%s err=%v", info.JobID, info.Attempt, time.Since(start), err)
			} else {
				l.Debugf("attempt ok: id=%s attempt=%d dur=%s", info.JobID, info.Attempt, time.Since(start))
			}
			return err
		}
	}
}
