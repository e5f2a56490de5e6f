package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [name]",
		Short: "Show the status of managed processes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			client, closeClient, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer closeClient()

			statuses, err := client.Status(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				statuses = filterStatuses(statuses, args[0])
			}
			printStatusTable(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	return cmd
}
