package main

import (
	"booksync/internal/core/service"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newDeviceCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage registered devices",
	}
	cmd.AddCommand(newDeviceRegisterCommand(opts))
	return cmd
}

func newDeviceRegisterCommand(opts *rootOptions) *cobra.Command {
	var (
		name      string
		userID    int64
		libraryID int64
		shelves   bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a device and print its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			device, err := service.RegisterDevice(cmd.Context(), store, clockwork.NewRealClock(), name, userID, libraryID, shelves)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), device.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name of the device (required)")
	cmd.Flags().Int64Var(&userID, "user", 0, "owning user id (required)")
	cmd.Flags().Int64Var(&libraryID, "library", 1, "library the device syncs")
	cmd.Flags().BoolVar(&shelves, "shelves", false, "only sync books on the user's sync-enabled shelves")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
