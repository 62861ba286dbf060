package main

import (
	"context"
	"strconv"

	"github.com/paulexconde/bizassess/internal/app"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/spf13/cobra"
)

var (
	surveyCmd = &cobra.Command{
		Use:   "survey",
		Short: "Manage surveys",
	}

	surveyCreateCmd = &cobra.Command{
		Use:   "create [EXPRESS|FULL] [name]",
		Short: "Create a survey",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				survey, err := a.Catalog.CreateSurvey(ctx, models.SurveyType(args[0]), args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, survey)
			})
		},
	}

	surveyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List surveys with their published pointer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				surveys, err := a.Catalog.ListSurveys(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, surveys)
			})
		},
	}

	surveyShowCmd = &cobra.Command{
		Use:   "show [survey-id]",
		Short: "Print one survey",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			return a.Catalog.GetSurvey(ctx, id)
		}),
	}

	surveyDeleteCmd = &cobra.Command{
		Use:   "delete [survey-id]",
		Short: "Soft-delete a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Catalog.DeleteSurvey(ctx, id)
			})
		},
	}

	adminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Manage admins",
	}

	adminAddCmd = &cobra.Command{
		Use:   "add [telegram-username]",
		Short: "Register an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				admin, err := a.Catalog.RegisterAdmin(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, admin)
			})
		},
	}

	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Start and resolve survey sessions",
	}

	sessionStartCmd = &cobra.Command{
		Use:   "start [survey-id] [user-id]",
		Short: "Start a session on the published version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			surveyID, err := parseID(args[0])
			if err != nil {
				return err
			}
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				session, err := a.Sessions.StartSession(ctx, surveyID, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, session)
			})
		},
	}

	sessionResolveCmd = &cobra.Command{
		Use:   "resolve [session-id]",
		Short: "Print the version a session is pinned to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				version, err := a.Sessions.ResolveSessionVersion(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, version)
			})
		},
	}

	validateCmd = &cobra.Command{
		Use:   "validate [structure.json]",
		Short: "Report every problem in a structure file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			structure, err := readStructure(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				violations := a.Validator.Violations(structure)
				if err := printJSON(cmd, violations); err != nil {
					return err
				}
				if len(violations) > 0 {
					return a.Validator.Validate(structure)
				}
				return nil
			})
		},
	}
)

func init() {
	surveyCmd.AddCommand(surveyCreateCmd, surveyListCmd, surveyShowCmd, surveyDeleteCmd)
	adminCmd.AddCommand(adminAddCmd)
	sessionCmd.AddCommand(sessionStartCmd, sessionResolveCmd)
}
