package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"worklog/internal/actions"
	"worklog/internal/entity"
)

// NewEndCommand creates the command closing a mission.
func NewEndCommand(opts *RootOptions) *cobra.Command {
	var (
		missionID    int64
		when         string
		team         string
		expenditures string
		comment      string
		location     string
	)

	cmd := &cobra.Command{
		Use:   "end",
		Short: "End a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			mission, ok := app.Store.GetEntity(entity.TypeMissions, entity.ID(missionID))
			if !ok {
				return &ExitError{Code: ExitCommandError, Message: "unknown mission"}
			}
			endTime, err := parseWhen(when)
			if err != nil {
				return err
			}
			teamIDs, err := parseIDList(team)
			if err != nil {
				return err
			}

			endOpts := actions.EndMissionOptions{
				Mission: mission,
				EndTime: endTime,
				Comment: comment,
			}
			if expenditures != "" {
				endOpts.Expenditures = map[string]bool{}
				for _, kind := range strings.Split(expenditures, ",") {
					endOpts.Expenditures[strings.TrimSpace(kind)] = true
				}
			}
			if location != "" {
				endOpts.EndLocation = &actions.Address{Name: location}
			}

			if err := app.Actions.EndMissionForTeam(background(cmd), endOpts, teamIDs); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	cmd.Flags().StringVar(&when, "time", "now", "end time (now, unix, or RFC 3339)")
	cmd.Flags().StringVar(&team, "team", "", "comma-separated team member ids")
	cmd.Flags().StringVar(&expenditures, "expenditures", "", "final expenditure kinds, comma-separated")
	cmd.Flags().StringVar(&comment, "comment", "", "closing comment")
	cmd.Flags().StringVar(&location, "location", "", "end address")
	cmd.MarkFlagRequired("mission")

	return cmd
}

// NewValidateCommand creates the command validating a finished mission.
// Validation rejections are surfaced immediately instead of being absorbed.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	var missionID int64

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a finished mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			mission, ok := app.Store.GetEntity(entity.TypeMissions, entity.ID(missionID))
			if !ok {
				return &ExitError{Code: ExitCommandError, Message: "unknown mission"}
			}
			if err := app.Actions.ValidateMission(background(cmd), mission); err != nil {
				return &ExitError{Code: ExitFailure, Message: "validation failed", Err: err}
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	cmd.MarkFlagRequired("mission")

	return cmd
}
