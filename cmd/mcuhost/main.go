// Command mcuhost is the host-side CLI for talking to a motion
// micro-controller: connecting over serial or emitting a dry-run
// command stream, and inspecting a retrieved data dictionary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mcuhost/host/config"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcuhost",
		Short: "Host-side control interface to a motion micro-controller",
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default none; defaults + env + flags)")
	flags.String("device", "/dev/ttyACM0", "serial device path")
	flags.Int("baud", 250000, "baud rate (ignored over USB CDC)")
	flags.Bool("pace", false, "in dry-run mode, pace print-time against a synthetic clock")
	flags.String("out", "", "dry-run output path")
	flags.String("pin_map", "", "pin-name translation table (JSON)")
	flags.StringSlice("custom", nil, "custom config command line (repeatable)")

	root.AddCommand(newDictCmd(), newConnectCmd(), newDryRunCmd())
	return root
}

func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	return config.Load(cfgFile, flags)
}
