package cli

import (
	"time"

	"github.com/spf13/cobra"

	"worklog/internal/transport"
)

// NewPendingCommand creates the command listing queued submissions.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List submissions waiting for the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			pending := app.Store.PendingRequests()
			if len(pending) == 0 {
				cmd.Println("queue is empty")
				return nil
			}
			for _, req := range pending {
				enqueued := time.Unix(req.EnqueuedAt, 0).Format(time.RFC3339)
				marker := " "
				if !req.Batchable {
					marker = "*"
				}
				cmd.Printf("%4d %s %-22s enqueued %s\n", req.ID, marker, transport.DocumentName(req.Query), enqueued)
			}
			return nil
		},
	}
	return cmd
}

// NewSyncCommand creates the command draining the queue.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Transmit queued submissions to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			before := len(app.Store.PendingRequests())
			if err := app.Actions.FlushPending(background(cmd)); err != nil {
				return err
			}
			after := len(app.Store.PendingRequests())
			cmd.Printf("processed %d, %d still queued\n", before-after, after)
			return app.Done()
		},
	}
	return cmd
}

// NewLogoutCommand creates the command ending the session.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Discard queued submissions and wipe local state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Actions.Logout(background(cmd)); err != nil {
				return err
			}
			cmd.Println("logged out")
			return nil
		},
	}
	return cmd
}
