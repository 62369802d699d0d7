package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

// globalFlags override values from the config file and environment.
type globalFlags struct {
	configPath  string
	logLevel    string
	logFile     string
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "gitcouch",
		Short:         "Replicate git repositories into a document store, dependencies first",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "path to a TOML config file")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&g.logFile, "log-file", "", "write logs to this file, rotated by size")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on host:port")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newPollCmd(g))
	root.AddCommand(newWatchCmd(g))
	root.AddCommand(newVerifyCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gitcouch %s\n", version)
		},
	}
}
