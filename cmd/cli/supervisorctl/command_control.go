package main

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-supervisor/pkg/domain"

	"github.com/spf13/cobra"
)

func newControlCmd(opts *rootOptions, verb, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " <name|all>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			client, closeClient, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer closeClient()

			var results []domain.Result
			switch verb {
			case "start":
				results, err = client.Start(ctx, args[0])
			case "stop":
				results, err = client.Stop(ctx, args[0])
			case "restart":
				results, err = client.Restart(ctx, args[0])
			}
			if err != nil {
				return err
			}

			printResultTable(cmd.OutOrStdout(), results)
			if domain.Failed(results) {
				return fmt.Errorf("%s failed for one or more processes", verb)
			}
			return nil
		},
	}
	return cmd
}
