package cli

import (
	"github.com/spf13/cobra"

	"worklog/internal/actions"
	"worklog/internal/entity"
)

// NewStartCommand creates the command beginning a new mission.
func NewStartCommand(opts *RootOptions) *cobra.Command {
	var (
		name         string
		activityType string
		team         string
		driver       int64
		vehicleID    int64
		registration string
		location     string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Begin a new mission with its first activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			teamIDs, err := parseIDList(team)
			if err != nil {
				return err
			}
			var startLocation *actions.Address
			if location != "" {
				startLocation = &actions.Address{Name: location}
			}

			missionID, err := app.Actions.BeginMission(background(cmd), actions.BeginMissionOptions{
				Name:                name,
				FirstActivityType:   entity.NormalizeActivityType(activityType),
				Team:                teamIDs,
				DriverID:            entity.ID(driver),
				VehicleID:           entity.ID(vehicleID),
				VehicleRegistration: registration,
				StartLocation:       startLocation,
			})
			if err != nil {
				return err
			}
			cmd.Printf("mission %d started\n", int64(missionID))
			return app.Done()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "mission name")
	cmd.Flags().StringVar(&activityType, "activity", entity.ActivityWork, "first activity type (drive|work|break|rest)")
	cmd.Flags().StringVar(&team, "team", "", "comma-separated team member ids")
	cmd.Flags().Int64Var(&driver, "driver", 0, "id of the team member driving")
	cmd.Flags().Int64Var(&vehicleID, "vehicle", 0, "known vehicle id")
	cmd.Flags().StringVar(&registration, "registration", "", "vehicle registration number")
	cmd.Flags().StringVar(&location, "location", "", "start address")

	return cmd
}
