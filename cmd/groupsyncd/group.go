package main

import (
	"fmt"

	"github.com/UniQw/jobmanager-go/groupsync"
	"github.com/spf13/cobra"
)

func groupCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "group",
		Short: "Inspect and seed the local group store",
	}
	command.AddCommand(groupPutCmd(), groupGetCmd())
	return command
}

func groupPutCmd() *cobra.Command {
	var (
		revision int
		title    string
	)
	var command = &cobra.Command{
		Use:   "put <master-key-hex>",
		Short: "Store a group locally and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := groupsync.ParseMasterKey(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec := groupsync.GroupRecord{ID: key.GroupID(), MasterKey: key, Revision: revision, Title: title}
			if err := groupsync.NewRedisGroupStore(a.rdb).Save(cmd.Context(), rec); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
	command.Flags().IntVar(&revision, "revision", 0, "Local revision")
	command.Flags().StringVar(&title, "title", "", "Group title")
	return command
}

func groupGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <group-id>",
		Short: "Print the locally stored state of a group",
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

			rec, ok, err := a.deps.Groups.Lookup(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", groupsync.ErrGroupNotFound, id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%s revision=%d title=%q\n", rec.ID, rec.Revision, rec.Title)
			return nil
		},
	}
}
