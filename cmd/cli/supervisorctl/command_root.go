package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	port         int
	pingAttempts int
	timeout      time.Duration
	verbose      bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "supervisorctl",
		Short:         "Control a running hsu supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().IntVar(&opts.port, "port", 0, "supervisor control port (default $"+portEnv+" or "+strconv.Itoa(defaultPort)+")")
	root.PersistentFlags().IntVar(&opts.pingAttempts, "ping-attempts", 3, "pings before giving up on the supervisor")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log control calls to stderr")

	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newControlCmd(opts, "start", "Start a process, or all processes"))
	root.AddCommand(newControlCmd(opts, "stop", "Stop a process, or all processes"))
	root.AddCommand(newControlCmd(opts, "restart", "Restart a process, or all processes"))

	return root
}
