package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulexconde/bizassess/internal/app"
	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/internal/services"
	"github.com/spf13/cobra"
)

var (
	versionName      string
	versionType      string
	versionStructure string
	versionAuthor    int64
	versionStatus    string
	historyPage      int
	historyLimit     int

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Manage survey versions",
	}

	versionCreateCmd = &cobra.Command{
		Use:   "create [survey-id]",
		Short: "Create a draft version from a structure file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surveyID, err := parseID(args[0])
			if err != nil {
				return err
			}
			structure, err := readStructure(versionStructure)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				v, err := a.Versions.CreateDraftVersion(ctx, surveyID, versionName, models.SurveyType(versionType), structure, versionAuthor)
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}

	versionUpdateCmd = &cobra.Command{
		Use:   "update [version-id]",
		Short: "Replace the name and structure of a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			structure, err := readStructure(versionStructure)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				v, err := a.Versions.UpdateDraftStructure(ctx, versionID, versionName, structure)
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}

	versionCloneCmd = &cobra.Command{
		Use:   "clone [version-id]",
		Short: "Copy a version into a new draft",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			return a.Versions.CreateNewVersionFromExisting(ctx, id, versionAuthor)
		}),
	}

	versionPublishCmd = &cobra.Command{
		Use:   "publish [version-id]",
		Short: "Publish a draft",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			return a.Versions.PublishVersion(ctx, id)
		}),
	}

	versionUnpublishCmd = &cobra.Command{
		Use:   "unpublish [version-id]",
		Short: "Archive a published version",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			return a.Versions.UnpublishVersion(ctx, id)
		}),
	}

	versionShowCmd = &cobra.Command{
		Use:   "show [version-id]",
		Short: "Print one version",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			return a.Versions.GetVersion(ctx, id)
		}),
	}

	versionLatestCmd = &cobra.Command{
		Use:   "latest [survey-id]",
		Short: "Print the highest-numbered version, optionally of one status",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			var status *models.VersionStatus
			if versionStatus != "" {
				s := models.VersionStatus(versionStatus)
				if !s.Valid() {
					return nil, fmt.Errorf("unknown status %q", versionStatus)
				}
				status = &s
			}
			return a.Versions.GetLatestVersion(ctx, id, status)
		}),
	}

	versionHistoryCmd = &cobra.Command{
		Use:   "history [survey-id]",
		Short: "List the versions of a survey, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: idAction(func(ctx context.Context, a *app.App, id int64) (any, error) {
			if historyPage > 0 {
				return a.Versions.GetVersionHistoryPage(ctx, id, historyPage, historyLimit)
			}
			return a.Versions.GetVersionHistory(ctx, id)
		}),
	}
)

func init() {
	for _, c := range []*cobra.Command{versionCreateCmd, versionUpdateCmd} {
		c.Flags().StringVar(&versionName, "name", "", "version name (defaults to the survey name on create)")
		c.Flags().StringVarP(&versionStructure, "structure", "f", "", "path to the structure JSON, - for stdin")
		_ = c.MarkFlagRequired("structure")
	}
	versionCreateCmd.Flags().StringVar(&versionType, "type", "", "survey type: EXPRESS or FULL")
	_ = versionCreateCmd.MarkFlagRequired("type")

	for _, c := range []*cobra.Command{versionCreateCmd, versionCloneCmd} {
		c.Flags().Int64Var(&versionAuthor, "author", 0, "admin id of the author")
		_ = c.MarkFlagRequired("author")
	}

	versionLatestCmd.Flags().StringVar(&versionStatus, "status", "", "only consider versions with this status")
	versionHistoryCmd.Flags().IntVar(&historyPage, "page", 0, "page number, 0 lists everything")
	versionHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "page size")

	versionCmd.AddCommand(
		versionCreateCmd,
		versionUpdateCmd,
		versionCloneCmd,
		versionPublishCmd,
		versionUnpublishCmd,
		versionShowCmd,
		versionLatestCmd,
		versionHistoryCmd,
	)
}

// idAction adapts an id-taking operation into a command that prints its result.
func idAction(fn func(ctx context.Context, a *app.App, id int64) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := fn(ctx, a, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func readStructure(path string) (models.Structure, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read structure: %w", err)
	}
	return services.ParseStructure(raw)
}
