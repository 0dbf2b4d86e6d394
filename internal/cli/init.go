package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/archivist/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Sample string
	Force  bool
}

// RegistrationView is the printable form of a resolved kind.
type RegistrationView struct {
	Kind              string `json:"kind"`
	Collection        string `json:"collection"`
	ArchiveCollection string `json:"archive_collection,omitempty"`
	VersionField      string `json:"version_field,omitempty"`
	RetentionCount    int    `json:"retention_count"`
	Archived          bool   `json:"archived"`
}

func (r RegistrationView) String() string {
	if !r.Archived {
		return fmt.Sprintf("%s: %s (not archived)", r.Kind, r.Collection)
	}
	return fmt.Sprintf("%s: %s -> %s (keep %d, version field %s)",
		r.Kind, r.Collection, r.ArchiveCollection, r.RetentionCount, r.VersionField)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and provision archive indexes",
		Long: `Create the database and provision the archive index of every
configured kind. Safe to run repeatedly.

With --sample, write an example configuration file instead.

Example:
  archivist init --sample archivist.yaml
  archivist init --config archivist.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Sample != "" {
				return writeSample(opts, cmd)
			}
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sample, "sample", "", "write an example config file to this path")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing file with --sample")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	kinds := a.ds.Kinds()
	views := make([]RegistrationView, 0, len(kinds))
	for _, kind := range kinds {
		reg, err := a.archiver.Registry().Resolve(cmd.Context(), kind)
		if err != nil {
			return a.out.Fail("init "+kind, err)
		}
		views = append(views, RegistrationView{
			Kind:              reg.Kind,
			Collection:        reg.LiveCollection,
			ArchiveCollection: reg.ArchiveCollection,
			VersionField:      reg.VersionField,
			RetentionCount:    reg.Count,
			Archived:          reg.Enabled,
		})
	}

	if a.out.Format == "json" {
		return a.out.Success(views)
	}
	fmt.Fprintf(a.out.Writer, "Initialized %s\n", a.cfg.Database)
	for _, v := range views {
		fmt.Fprintf(a.out.Writer, "  %s\n", v)
	}
	return nil
}

// sampleConfig is written by init --sample.
func sampleConfig() *config.Config {
	cfg := config.Default()
	cfg.Kinds = []config.Kind{
		{Name: "note", Collection: "notes", RetentionCount: 5},
		{Name: "page", Collection: "pages", VersionField: "rev", ArchiveCollection: "page_history", RetentionCount: 10},
	}
	return cfg
}

func writeSample(opts *InitOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(opts.Sample); err == nil && !opts.Force {
		_ = out.Error(ErrCodeInvalidInput, fmt.Sprintf("%s already exists (use --force to overwrite)", opts.Sample), nil)
		return NewExitError(ExitCommandError, "config file exists")
	}

	data, err := yaml.Marshal(sampleConfig())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render config", err)
	}
	if err := os.WriteFile(opts.Sample, data, 0o644); err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write config", err)
	}
	return out.Success(fmt.Sprintf("Wrote %s", opts.Sample))
}
