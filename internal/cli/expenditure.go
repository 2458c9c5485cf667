package cli

import (
	"github.com/spf13/cobra"

	"worklog/internal/entity"
)

// NewExpenditureCommand creates the expenditure subcommands.
func NewExpenditureCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenditure",
		Short: "Record and withdraw expenditures",
	}
	cmd.AddCommand(newExpenditureLogCommand(opts))
	cmd.AddCommand(newExpenditureCancelCommand(opts))
	return cmd
}

func newExpenditureLogCommand(opts *RootOptions) *cobra.Command {
	var (
		kind      string
		missionID int64
		team      string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record an expenditure on a mission",
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
			if err := app.Actions.LogExpenditureForTeam(background(cmd), kind, entity.ID(missionID), teamIDs); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "expenditure kind (day_meal|night_meal|sleep_over|snack)")
	cmd.Flags().Int64Var(&missionID, "mission", 0, "mission id")
	cmd.Flags().StringVar(&team, "team", "", "comma-separated team member ids")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("mission")

	return cmd
}

func newExpenditureCancelCommand(opts *RootOptions) *cobra.Command {
	var expenditureID int64

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Withdraw an expenditure",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			expenditure, ok := app.Store.GetEntity(entity.TypeExpenditures, entity.ID(expenditureID))
			if !ok {
				return &ExitError{Code: ExitCommandError, Message: "unknown expenditure"}
			}
			if err := app.Actions.CancelExpenditure(background(cmd), expenditure); err != nil {
				return err
			}
			return app.Done()
		},
	}

	cmd.Flags().Int64Var(&expenditureID, "id", 0, "expenditure id")
	cmd.MarkFlagRequired("id")

	return cmd
}
