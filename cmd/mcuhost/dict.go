package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcuhost/host/mcu"
	"mcuhost/host/reactor"
)

func newDictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dict",
		Short: "Connect to an MCU, retrieve its data dictionary, and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			r := reactor.New()
			r.Run()
			defer r.Stop()

			m := mcu.New(r, mcu.WithLogger(func(format string, a ...interface{}) {
				fmt.Fprintf(cmd.OutOrStdout(), format+"\n", a...)
			}))

			if err := m.Connect(cfg.SerialConfig(), newWallClockSync()); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer m.Close()

			dict := m.Dictionary()
			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", dict.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "build_versions: %s\n", dict.BuildVersions)
			fmt.Fprintf(cmd.OutOrStdout(), "commands: %d\n", len(dict.Commands))
			fmt.Fprintf(cmd.OutOrStdout(), "responses: %d\n", len(dict.Responses))
			fmt.Fprintf(cmd.OutOrStdout(), "mcu_freq: %.0f\n", m.GetMCUFreq())
			return nil
		},
	}
}
