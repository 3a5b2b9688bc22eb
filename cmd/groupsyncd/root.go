package main

import (
	"context"
	"fmt"
	"os"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/UniQw/jobmanager-go/groupsync"
	"github.com/UniQw/jobmanager-go/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var envFile string

func rootCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "groupsyncd",
		Short: "Durable group state sync worker",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
		SilenceUsage: true,
	}
	command.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")

	command.AddCommand(workerCmd())
	command.AddCommand(enqueueCmd())
	command.AddCommand(groupCmd())
	return command
}

// app bundles what every command needs.
type app struct {
	cfg  *config.Config
	log  zerolog.Logger
	rdb  *redis.Client
	deps groupsync.Deps
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}

	jl := jobmanager.NewZerologLogger(logger)
	groups := groupsync.NewRedisGroupStore(rdb)
	return &app{
		cfg: cfg,
		log: logger,
		rdb: rdb,
		deps: groupsync.Deps{
			Groups:    groups,
			Processor: groupsync.NewHTTPProcessor(cfg.Groups.ServiceURL, groups, groupsync.WithProcessorLogger(jl)),
			Logger:    jl,
		},
	}, nil
}

func (a *app) Close() { _ = a.rdb.Close() }

// manager builds a manager over the Redis job store. It is not started.
func (a *app) manager(network *jobmanager.ReachabilityFlag, opts ...jobmanager.Option) *jobmanager.Manager {
	reg := jobmanager.NewRegistry()
	groupsync.Register(reg, a.deps)
	store := jobmanager.NewRedisStore(a.rdb, jobmanager.StoreNamespace(a.cfg.Redis.Namespace))
	opts = append([]jobmanager.Option{
		jobmanager.WithConstraint(jobmanager.NewNetworkConstraint(network)),
	}, opts...)
	return jobmanager.NewManager(store, reg, a.cfg.Manager.ManagerConfig(a.deps.Logger), opts...)
}

func (a *app) syncJob(id groupsync.GroupID, revision int) (jobmanager.Job, error) {
	return groupsync.NewRequestGroupInfoJob(a.deps, id, revision)
}
