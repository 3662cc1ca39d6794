package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/projectopenrap/buildimage/src/buildimage/output"
	"github.com/projectopenrap/buildimage/src/buildimage/storage"
	"github.com/projectopenrap/buildimage/src/buildimage/target"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List published images",
	Long: `Lists the images and checksum files published to the configured storage
backend, optionally restricted to one profile.`,
	Args: cobra.NoArgs,
	RunE: runArtifacts,
}

func init() {
	artifactsCmd.Flags().String("profile", "", "Only list images of this profile")
	artifactsCmd.Flags().StringP("output", "o", "", "Output format: table, json, yaml (default: table on a terminal, json otherwise)")
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	name, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(name, out)
	if err != nil {
		return errors.ErrInvalidConfig.WithMessage(err.Error())
	}

	prefix := string(target.DeviceOpenRAP) + "/"
	if p, _ := cmd.Flags().GetString("profile"); p != "" {
		profile, err := target.ParseProfile(p)
		if err != nil {
			return err
		}
		prefix = storage.ArtifactKey(string(target.DeviceOpenRAP), string(profile), "")
	}

	backend, err := newStorage()
	if err != nil {
		return err
	}
	if err := backend.Ping(cmd.Context()); err != nil {
		return errors.ErrStorageUnavailable.WithMessage(backend.Location()).WithCause(err)
	}

	objects, err := backend.List(cmd.Context(), prefix)
	if err != nil {
		return errors.ErrStorageUnavailable.WithCause(err)
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(out, objects)
	case output.FormatYAML:
		return output.PrintYAML(out, objects)
	}

	if len(objects) == 0 {
		fmt.Fprintf(out, "No images published in %s.\n", backend.Location())
		return nil
	}
	rows := make([][]string, 0, len(objects))
	for _, o := range objects {
		rows = append(rows, []string{o.Key, strconv.FormatInt(o.Size, 10), o.LastModified.Local().Format(time.DateTime)})
	}
	return output.PrintTable(out, []string{"KEY", "SIZE", "MODIFIED"}, rows)
}
