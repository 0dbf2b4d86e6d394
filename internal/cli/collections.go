package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CollectionView is the printable form of a stored collection.
type CollectionView struct {
	Name      string `json:"name"`
	Documents int64  `json:"documents"`
}

func (c CollectionView) String() string {
	return fmt.Sprintf("%-24s %d", c.Name, c.Documents)
}

// NewCollectionsCommand creates the collections command.
func NewCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List stored collections and their document counts",
		Long: `List every collection holding at least one document, live and archive
alike, with its document count.

Example:
  archivist collections
  archivist collections --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			names, err := a.store.Collections(cmd.Context())
			if err != nil {
				return a.out.Fail("collections", err)
			}
			views := make([]CollectionView, 0, len(names))
			for _, name := range names {
				n, err := a.store.Count(cmd.Context(), name, nil)
				if err != nil {
					return a.out.Fail("collections", err)
				}
				views = append(views, CollectionView{Name: name, Documents: n})
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
