package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/archivist/internal/archive"
)

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "versions <kind> <id>",
		Short:         "Print how many archived versions a document has",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			live, err := a.live(cmd, args[0], args[1])
			if err != nil {
				return a.out.Fail("versions", err)
			}
			n, err := a.archiver.CountVersions(cmd.Context(), args[0], live)
			if err != nil {
				return a.out.Fail("versions", err)
			}
			return a.out.Success(n)
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <kind> <id>",
		Short: "Print archived versions of a document, oldest first",
		Long: `Print the archived versions of a document, oldest first.

Each entry is printed in live shape with the version field set to the
version it was archived at.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			live, err := a.live(cmd, args[0], args[1])
			if err != nil {
				return a.out.Fail("history", err)
			}
			history, err := a.archiver.History(cmd.Context(), args[0], live)
			if err != nil {
				return a.out.Fail("history", err)
			}
			return a.out.Success(history)
		},
	}
}

// ProvenanceView is the printable form of a provenance record.
type ProvenanceView struct {
	Mode          string `json:"mode"`
	FromVersion   int64  `json:"from_version"`
	SourceVersion int64  `json:"source_version"`
	ToVersion     int64  `json:"to_version"`
	At            string `json:"at"`
}

func (p ProvenanceView) String() string {
	return fmt.Sprintf("%s  %s  v%d -> v%d (from snapshot v%d)", p.At, p.Mode, p.FromVersion, p.ToVersion, p.SourceVersion)
}

// NewProvenanceCommand creates the provenance command.
func NewProvenanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "provenance <kind> <id>",
		Short:         "Print the restores applied to a document",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.archiver.Provenance(cmd.Context(), args[0], parseID(args[1]))
			if err != nil {
				return a.out.Fail("provenance", err)
			}
			views := make([]ProvenanceView, len(records))
			for i, r := range records {
				views[i] = provenanceView(r)
			}
			if a.out.Format == "json" {
				return a.out.Success(views)
			}
			for _, v := range views {
				fmt.Fprintln(a.out.Writer, v)
			}
			return nil
		},
	}
}

func provenanceView(r archive.ProvenanceRecord) ProvenanceView {
	return ProvenanceView{
		Mode:          string(r.Mode),
		FromVersion:   r.FromVersion,
		SourceVersion: r.SourceVersion,
		ToVersion:     r.ToVersion,
		At:            r.At.UTC().Format(time.RFC3339),
	}
}
