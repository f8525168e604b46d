package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcuhost/host/mcu"
	"mcuhost/host/reactor"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to an MCU and negotiate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			resolver, err := loadPinResolver(cfg.PinMapPath)
			if err != nil {
				return err
			}
			custom, err := cfg.CustomLines()
			if err != nil {
				return err
			}

			r := reactor.New()
			r.Run()
			defer r.Stop()

			m := mcu.New(r,
				mcu.WithLogger(func(format string, a ...interface{}) {
					fmt.Fprintf(cmd.OutOrStdout(), format+"\n", a...)
				}),
				mcu.WithPinResolver(resolver),
				mcu.WithCustomConfigLines(custom),
			)

			if err := m.Connect(cfg.SerialConfig(), newWallClockSync()); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer m.Close()

			if err := m.BuildConfig(); err != nil {
				return fmt.Errorf("build config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "configured, waiting for interrupt (Ctrl-C) to exit")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			return nil
		},
	}
}

func loadPinResolver(path string) (mcu.PinResolver, error) {
	if path == "" {
		return mcu.IdentityPinResolver{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pin map %s: %w", path, err)
	}
	var aliases map[string]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("parse pin map %s: %w", path, err)
	}
	return mcu.NewMapPinResolver(aliases), nil
}
