package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivewatch/drivewatch/internal/channel"
	"github.com/drivewatch/drivewatch/internal/config"
)

// openDevices opens the device directory named by the config file.
func openDevices(g *globals) (*channel.Directory, error) {
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil && cfg == nil {
		return nil, err
	}
	return channel.OpenDirectory(cfg.DevicesFile)
}

func newDevicesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage notification recipients",
		Long: `Manage the device directory read by the push, SMS and email channels.
A running drivewatch reloads the directory when the file changes.`,
	}

	var label string
	register := &cobra.Command{
		Use:   "register <push|sms|email> <address>",
		Short: "Register a device token, phone number or email address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := openDevices(g)
			if err != nil {
				return err
			}
			dev, err := dir.Register(args[0], args[1], label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s %s (%s)\n", dev.Kind, dev.Address, dev.ID)
			return nil
		},
	}
	register.Flags().StringVar(&label, "label", "", "human readable label")

	unregister := &cobra.Command{
		Use:   "unregister <address|id>",
		Short: "Remove a registered device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := openDevices(g)
			if err != nil {
				return err
			}
			ok, err := dir.Unregister(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no device matches %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unregistered %s\n", args[0])
			return nil
		},
	}

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := openDevices(g)
			if err != nil {
				return err
			}
			devs := dir.List(kind)
			if len(devs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no devices")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tADDRESS\tLABEL\tID\tREGISTERED")
			for _, d := range devs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					d.Kind, d.Address, d.Label, d.ID, d.RegisteredAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "only list this kind")

	cmd.AddCommand(register, unregister, list)
	return cmd
}
