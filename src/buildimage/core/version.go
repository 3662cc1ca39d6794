package core

import (
	"fmt"

	"github.com/projectopenrap/buildimage/src/buildimage/output"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	name, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(name, out)
	if err != nil {
		return errors.ErrInvalidConfig.WithMessage(err.Error())
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(out, VersionInfo.Map())
	case output.FormatYAML:
		return output.PrintYAML(out, VersionInfo.Map())
	}

	fmt.Fprintln(out, VersionInfo.Full())
	return nil
}
