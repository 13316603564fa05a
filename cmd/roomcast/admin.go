package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/roomcast/roomcast/internal/admin"
	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/store/sqlite"
)

// newAdminCmd groups the read-only inspection commands. They open the
// database file directly so they can run next to a live server.
func newAdminCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect and manage the message store",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", config.Default().DatabasePath, "path to SQLite database file")

	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "List all rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := sqlite.NewReadOnly(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			return admin.RenderRooms(cmd.Context(), os.Stdout, st)
		},
	}

	var (
		sender string
		limit  int
	)
	messages := &cobra.Command{
		Use:   "messages <room>",
		Short: "List a room's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := sqlite.NewReadOnly(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			return admin.RenderMessages(cmd.Context(), os.Stdout, st, args[0], sender, limit)
		},
	}
	messages.Flags().StringVar(&sender, "sender", "", "only show messages from this sender")
	messages.Flags().IntVar(&limit, "limit", 100, "max messages to show")

	dropRoom := &cobra.Command{
		Use:   "drop-room <room>",
		Short: "Delete a room and all of its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := sqlite.New(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			return st.DeleteRoom(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(rooms, messages, dropRoom)
	return cmd
}
