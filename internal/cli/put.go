package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/archivist/internal/datastore"
	"github.com/roach88/archivist/internal/document"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <kind> <json>",
		Short: "Insert or update a document",
		Long: `Insert or update a document of the given kind.

A document without _id, or with an _id not yet stored, is inserted at
version 0. Otherwise it must carry the current version: the stored copy
is archived and the version increases by one. A stale version fails.

Example:
  archivist put note '{"body":"first draft"}'
  archivist put note '{"_id":"n1","body":"second draft","version":0}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := document.Decode([]byte(args[1]))
			if err != nil {
				_ = a.out.Error(ErrCodeInvalidInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid document", err)
			}
			saved, err := a.ds.SaveDocument(cmd.Context(), args[0], doc)
			if err != nil {
				return a.out.Fail("put "+args[0], err)
			}
			return a.out.Success(saved)
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Print the live document",
		Example: `  archivist get note n1
  archivist get note n1 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := a.live(cmd, args[0], args[1])
			if err != nil {
				return a.out.Fail("get", err)
			}
			return a.out.Success(doc)
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a document and its archived history",
		Long: `Delete the live document of the given kind together with its archived
snapshots. Provenance records are kept. Inserting the same _id later
starts a new history at version 0.

Example:
  archivist delete note n1
  archivist delete note 7`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			id := parseID(args[1])
			deleted, err := a.ds.Delete(cmd.Context(), args[0], id)
			if err != nil {
				return a.out.Fail("delete "+args[0], err)
			}
			if !deleted {
				return a.out.Fail("delete "+args[0], fmt.Errorf("%s %v: %w", args[0], id, datastore.ErrNotFound))
			}
			return a.out.Success(fmt.Sprintf("Deleted %s %v", args[0], id))
		},
	}
}
