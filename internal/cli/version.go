package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/roach88/casediff/internal/ir"
)

// VersionInfo is what the version command prints.
type VersionInfo struct {
	Version     string `json:"version"`
	ViewVersion string `json:"view_version"`
	Go          string `json:"go"`
}

// WriteText prints the version on one line.
func (v VersionInfo) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "casediff %s (view v%s, %s)\n", v.Version, v.ViewVersion, v.Go)
	return err
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the casediff version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(VersionInfo{
				Version:     ir.Version,
				ViewVersion: ir.ViewVersion,
				Go:          runtime.Version(),
			})
		},
	}
}
