package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShelfCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shelf",
		Short: "Manage shelves used to scope device sync",
	}
	cmd.AddCommand(newShelfCreateCommand(opts))
	cmd.AddCommand(newShelfAddCommand(opts))
	return cmd
}

func newShelfCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		name        string
		userID      int64
		libraryID   int64
		syncEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a shelf and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 || libraryID <= 0 {
				return fmt.Errorf("--user and --library must be positive")
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.CreateShelf(cmd.Context(), userID, libraryID, name, syncEnabled)
			if err != nil {
				return fmt.Errorf("failed to create shelf: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "shelf name (required)")
	cmd.Flags().Int64Var(&userID, "user", 0, "owning user id (required)")
	cmd.Flags().Int64Var(&libraryID, "library", 1, "library the shelf belongs to")
	cmd.Flags().BoolVar(&syncEnabled, "sync", true, "include the shelf in scoped device sync")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newShelfAddCommand(opts *rootOptions) *cobra.Command {
	var shelfID, bookID int64

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Put a book on a shelf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.GetBook(cmd.Context(), bookID); err != nil {
				return fmt.Errorf("book %d: %w", bookID, err)
			}
			if err := store.AddToShelf(cmd.Context(), shelfID, bookID); err != nil {
				return fmt.Errorf("failed to add book %d to shelf %d: %w", bookID, shelfID, err)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&shelfID, "shelf", 0, "shelf id (required)")
	cmd.Flags().Int64Var(&bookID, "book", 0, "book id (required)")
	_ = cmd.MarkFlagRequired("shelf")
	_ = cmd.MarkFlagRequired("book")

	return cmd
}
