package cli

import (
	"github.com/spf13/cobra"

	"worklog/internal/actions"
	"worklog/internal/entity"
)

// NewActivityCommand creates the activity subcommands: log, edit, cancel.
func NewActivityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Log and correct activities",
	}
	cmd.AddCommand(newActivityLogCommand(opts))
	cmd.AddCommand(newActivityEditCommand(opts))
	cmd.AddCommand(newActivityCancelCommand(opts))
	return cmd
}

func newActivityLogCommand(opts *RootOptions) *cobra.Command {
	var (
		activityType string
		missionID    int64
		start        string
		end          string
		team         string
		driver       int64
		comment      string
		noSwitch     bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log an activity on a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			startTime, err := parseWhen(start)
			if err != nil {
				return err
			}
			var endTime int64
			if end != "" {
				if endTime, err = parseWhen(end); err != nil {
					return err
				}
			}
			teamIDs, err := parseIDList(team)
			if err != nil {
				return err
			}

			if err := app.Actions.LogTeamActivity(background(cmd), actions.TeamActivityOptions{
				ActivityOptions: actions.ActivityOptions{
					Type:       entity.NormalizeActivityType(activityType),
					MissionID:  entity.ID(missionID),
					StartTime:  startTime,
					EndTime:    endTime,
					Comment:    comment,
					SwitchMode: !noSwitch,
				},
				Team:     teamIDs,
				DriverID: entity.ID(driver),
			}); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().StringVar(&activityType, "type", "", "activity type (drive|work|break|rest)")
	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	cmd.Flags().StringVar(&start, "start", "now", "start time (now, unix, or RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time; empty keeps the activity open")
	cmd.Flags().StringVar(&team, "team", "", "comma-separated team member ids")
	cmd.Flags().Int64Var(&driver, "driver", 0, "id of the team member driving")
	cmd.Flags().StringVar(&comment, "comment", "", "free-form context")
	cmd.Flags().BoolVar(&noSwitch, "no-switch", false, "do not close the current open activity")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("mission")

	return cmd
}

func newActivityEditCommand(opts *RootOptions) *cobra.Command {
	var (
		activityID int64
		start      string
		end        string
		comment    string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Correct the boundaries of a logged activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			activity, ok := app.Store.GetEntity(entity.TypeActivities, entity.ID(activityID))
			if !ok {
				return &ExitError{Code: ExitCommandError, Message: "unknown activity"}
			}
			startTime, err := parseWhen(start)
			if err != nil {
				return err
			}
			var endTime int64
			if end != "" {
				if endTime, err = parseWhen(end); err != nil {
					return err
				}
			}

			if err := app.Actions.EditActivity(background(cmd), activity, startTime, endTime, comment); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&activityID, "id", 0, "activity id")
	cmd.Flags().StringVar(&start, "start", "", "new start time")
	cmd.Flags().StringVar(&end, "end", "", "new end time; empty reopens the activity")
	cmd.Flags().StringVar(&comment, "comment", "", "correction context")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("start")

	return cmd
}

func newActivityCancelCommand(opts *RootOptions) *cobra.Command {
	var (
		activityID int64
		comment    string
	)

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Withdraw a logged activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			activity, ok := app.Store.GetEntity(entity.TypeActivities, entity.ID(activityID))
			if !ok {
				return &ExitError{Code: ExitCommandError, Message: "unknown activity"}
			}
			if err := app.Actions.CancelActivity(background(cmd), activity, comment); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&activityID, "id", 0, "activity id")
	cmd.Flags().StringVar(&comment, "comment", "", "cancellation context")
	cmd.MarkFlagRequired("id")

	return cmd
}
