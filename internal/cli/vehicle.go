package cli

import (
	"github.com/spf13/cobra"

	"worklog/internal/entity"
)

// NewVehicleCommand creates the vehicle booking command.
func NewVehicleCommand(opts *RootOptions) *cobra.Command {
	var (
		missionID    int64
		vehicleID    int64
		registration string
	)

	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Book a vehicle for a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if vehicleID == 0 && registration == "" {
				return &ExitError{Code: ExitCommandError, Message: "either --vehicle or --registration is required"}
			}
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Actions.BookVehicle(background(cmd), entity.ID(missionID), entity.ID(vehicleID), registration); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	cmd.Flags().Int64Var(&vehicleID, "vehicle", 0, "known vehicle id")
	cmd.Flags().StringVar(&registration, "registration", "", "vehicle registration number")
	cmd.MarkFlagRequired("mission")

	return cmd
}
