package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"worklog/internal/entity"
)

// NewStatusCommand creates the command dumping a local collection.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the local state of a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := entity.Type(collection)
			if !t.Valid() {
				return &ExitError{Code: ExitCommandError, Message: "unknown collection " + collection}
			}
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			for _, rec := range app.Store.List(t) {
				line, err := json.Marshal(rec.Fields)
				if err != nil {
					return err
				}
				pending := ""
				if rec.PendingSubmission() {
					pending = " (pending)"
				}
				cmd.Printf("%d%s %s\n", int64(rec.ID), pending, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", string(entity.TypeMissions), "collection to list")
	return cmd
}
