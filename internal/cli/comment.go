package cli

import (
	"github.com/spf13/cobra"

	"worklog/internal/entity"
)

// NewCommentCommand creates the comment subcommands.
func NewCommentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Attach and withdraw mission comments",
	}
	cmd.AddCommand(newCommentLogCommand(opts))
	cmd.AddCommand(newCommentCancelCommand(opts))
	return cmd
}

func newCommentLogCommand(opts *RootOptions) *cobra.Command {
	var (
		missionID int64
		text      string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Attach a comment to a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Actions.LogComment(background(cmd), text, entity.ID(missionID)); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	cmd.MarkFlagRequired("mission")
	cmd.MarkFlagRequired("text")

	return cmd
}

func newCommentCancelCommand(opts *RootOptions) *cobra.Command {
	var commentID int64

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Withdraw a comment",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			comment, ok := app.Store.GetEntity(entity.TypeComments, entity.ID(commentID))
			if !ok {
				return &ExitError{Code: ExitCommandError, Message: "unknown comment"}
			}
			if err := app.Actions.CancelComment(background(cmd), comment); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&commentID, "id", 0, "comment id")
	cmd.MarkFlagRequired("id")

	return cmd
}
