package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/archivist/internal/document"
)

// RestoreOptions holds flags for rollback, revert and restore.
type RestoreOptions struct {
	*RootOptions
	To int64
}

type restoreFunc func(ctx context.Context, a *app, kind string, live document.Document, opts *RestoreOptions, cmd *cobra.Command) (document.Document, error)

func newRestoreCommand(rootOpts *RootOptions, use, short, long string, run restoreFunc) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			live, err := a.live(cmd, args[0], args[1])
			if err != nil {
				return a.out.Fail(cmd.Name(), err)
			}
			doc, err := run(cmd.Context(), a, args[0], live, opts, cmd)
			if err != nil {
				return a.out.Fail(cmd.Name(), err)
			}
			return a.out.Success(doc)
		},
	}

	cmd.Flags().Int64Var(&opts.To, "to", -1, "version to restore")
	return cmd
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	return newRestoreCommand(rootOpts,
		"rollback <kind> <id>",
		"Overwrite a document with an archived version",
		`Overwrite the live document with an archived version and delete the
archived versions it supersedes. The live version goes back to the
restored version. Without --to, the newest archived version is used.

Example:
  archivist rollback note n1
  archivist rollback note n1 --to 2`,
		func(ctx context.Context, a *app, kind string, live document.Document, opts *RestoreOptions, cmd *cobra.Command) (document.Document, error) {
			if !cmd.Flags().Changed("to") {
				return a.archiver.Rollback(ctx, kind, live)
			}
			return a.archiver.RollbackToVersion(ctx, kind, live, opts.To)
		})
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	return newRestoreCommand(rootOpts,
		"revert <kind> <id>",
		"Save an archived version as a new version",
		`Save the content of an archived version as a new version of the
document. The current content is archived like any other update.
Without --to, the previous version is used.

Example:
  archivist revert note n1
  archivist revert note n1 --to 0`,
		func(ctx context.Context, a *app, kind string, live document.Document, opts *RestoreOptions, cmd *cobra.Command) (document.Document, error) {
			if !cmd.Flags().Changed("to") {
				return a.archiver.Revert(ctx, kind, live)
			}
			return a.archiver.RevertToVersion(ctx, kind, live, opts.To)
		})
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := newRestoreCommand(rootOpts,
		"restore <kind> <id> --to <version>",
		"Restore an archived version using the configured mode",
		`Restore an archived version using the mode set in the configuration
(destructive rollback or append-style revert).

Example:
  ARCHIVIST_MODE=append archivist restore note n1 --to 1`,
		func(ctx context.Context, a *app, kind string, live document.Document, opts *RestoreOptions, cmd *cobra.Command) (document.Document, error) {
			return a.archiver.Restore(ctx, kind, live, opts.To)
		})
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
