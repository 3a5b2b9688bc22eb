package main

import (
	"fmt"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/UniQw/jobmanager-go/groupsync"
	"github.com/spf13/cobra"
)

func enqueueCmd() *cobra.Command {
	var revision int

	var command = &cobra.Command{
		Use:   "enqueue <group-id>",
		Short: "Persist a group sync job; running workers pick it up on their next sweep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := groupsync.ParseGroupID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.syncJob(id, revision)
			if err != nil {
				return err
			}
			// Add persists before returning; this manager is never started.
			jobID, err := a.manager(jobmanager.NewReachabilityFlag(true)).Add(cmd.Context(), job)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	command.Flags().IntVar(&revision, "revision", groupsync.Latest, "Target revision (default: latest)")
	return command
}
