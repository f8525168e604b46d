package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcuhost/host/mcu"
	"mcuhost/protocol"
)

func newDryRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Negotiate configuration against a dictionary file without a real MCU",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.DictionaryPath == "" {
				return fmt.Errorf("--dictionary is required in dry-run mode")
			}

			data, err := os.ReadFile(cfg.DictionaryPath)
			if err != nil {
				return fmt.Errorf("read dictionary %s: %w", cfg.DictionaryPath, err)
			}
			dict, err := protocol.ParseDictionary(data)
			if err != nil {
				return fmt.Errorf("parse dictionary: %w", err)
			}

			resolver, err := loadPinResolver(cfg.PinMapPath)
			if err != nil {
				return err
			}
			custom, err := cfg.CustomLines()
			if err != nil {
				return err
			}

			m := mcu.New(nil,
				mcu.WithPinResolver(resolver),
				mcu.WithCustomConfigLines(custom),
			)
			if err := m.ConnectFile(dict, cfg.Pace); err != nil {
				return fmt.Errorf("connect file: %w", err)
			}

			if err := m.BuildConfig(); err != nil {
				return fmt.Errorf("build config: %w", err)
			}

			out := cmd.OutOrStdout()
			if cfg.OutPath != "" {
				f, err := os.Create(cfg.OutPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", cfg.OutPath, err)
				}
				defer f.Close()
				out = f
			}

			for _, line := range m.ConfigCommands() {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().String("dictionary", "", "path to a data dictionary JSON file")
	return cmd
}
