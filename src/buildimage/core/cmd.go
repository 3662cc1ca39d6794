// Package core provides the buildimage commands.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/projectopenrap/buildimage/src/buildimage/archive"
	"github.com/projectopenrap/buildimage/src/buildimage/db/migrations"
	"github.com/projectopenrap/buildimage/src/buildimage/pipeline"
	"github.com/projectopenrap/buildimage/src/buildimage/storage"
	"github.com/projectopenrap/buildimage/src/buildimage/target"
	"github.com/projectopenrap/buildimage/src/buildimage/toolchain"
	"github.com/projectopenrap/buildimage/src/common/cli"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/projectopenrap/buildimage/src/common/logs"
	"github.com/projectopenrap/buildimage/src/common/paths"
	"github.com/projectopenrap/buildimage/src/common/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log *logs.Logger

	// Configuration file path
	cfgFile string
)

// Linker variables - these are set via ldflags at build time
var (
	Version        = "dev"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

// rootCmd builds or cleans an image when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "buildimage",
	Short: "Build OpenRAP device images",
	Long: `buildimage assembles an OpenRAP image for a board, platform and content
profile: it stages the root filesystem overlay, the CDN tree and the device
management server, cross-compiles the API server, brands the tree for the
profile and packages it as dist/openrap-<version>.tgz under
build/output_<platform>_<board>_openrap/.

With --clean the output directory of the selected target is removed instead.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE: runImage,
}

// Execute runs the root command and exits with the status of the outcome
func Execute() {
	VersionInfo.Version = Version
	VersionInfo.ReleaseVersion = ReleaseVersion
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	report(err)
	os.Exit(errors.ExitCode(err))
}

// report prints a failure. A missing toolchain has already been reported
// with installation instructions.
func report(err error) {
	if err == nil || errors.Is(err, errors.ErrToolchainMissing) {
		return
	}
	if log != nil {
		log.Error(err.Error())
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "/etc/buildimage/buildimage.yaml")
	cli.RegisterLogFlags(rootCmd)

	// Target flags
	rootCmd.Flags().String("board", string(target.DefaultBoard), "Board type for the image (rpi, opi)")
	rootCmd.Flags().String("platform", string(target.DefaultPlatform), "Platform type for the image (raspbian, armbian)")
	rootCmd.Flags().String("profile", string(target.DefaultProfile), "Content profile (meghshala, ekstep)")
	rootCmd.Flags().Bool("clean", false, "Remove the output directory of the selected target")

	// Build flags
	rootCmd.PersistentFlags().String("base-dir", "", "OpenRAP source checkout (default: current directory)")
	rootCmd.Flags().String("archive-format", string(archive.DefaultFormat), "Image archive format (tgz, txz, tzst)")

	// Publishing flags
	rootCmd.Flags().Bool("publish", false, "Upload the packaged image to the storage backend")
	rootCmd.PersistentFlags().String("storage-type", "local", "Storage backend type: 'local' or 's3'")
	rootCmd.PersistentFlags().String("storage-path", "~/.buildimage/artifacts", "Local storage path (for local backend)")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3-compatible storage endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for published images")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-path-style", true, "Use path-style addressing for S3")

	// History flags
	rootCmd.Flags().Bool("history", true, "Record the run in the build history database")
	rootCmd.PersistentFlags().String("history-db", "", "Build history database (default: <base-dir>/build/history.db)")

	// Custom flag errors are usage errors
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.ErrInvalidConfig.WithMessage(err.Error())
	})

	// Bind flags to viper
	_ = viper.BindPFlag("target.board", rootCmd.Flags().Lookup("board"))
	_ = viper.BindPFlag("target.platform", rootCmd.Flags().Lookup("platform"))
	_ = viper.BindPFlag("target.profile", rootCmd.Flags().Lookup("profile"))
	_ = viper.BindPFlag("build.base_dir", rootCmd.PersistentFlags().Lookup("base-dir"))
	_ = viper.BindPFlag("build.archive_format", rootCmd.Flags().Lookup("archive-format"))
	_ = viper.BindPFlag("publish.enabled", rootCmd.Flags().Lookup("publish"))
	_ = viper.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local.path", rootCmd.PersistentFlags().Lookup("storage-path"))
	_ = viper.BindPFlag("storage.s3.endpoint", rootCmd.PersistentFlags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("storage.s3.region", rootCmd.PersistentFlags().Lookup("s3-region"))
	_ = viper.BindPFlag("storage.s3.bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("storage.s3.access_key", rootCmd.PersistentFlags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("storage.s3.secret_key", rootCmd.PersistentFlags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("storage.s3.path_style", rootCmd.PersistentFlags().Lookup("s3-path-style"))
	_ = viper.BindPFlag("history.enabled", rootCmd.Flags().Lookup("history"))
	_ = viper.BindPFlag("history.path", rootCmd.PersistentFlags().Lookup("history-db"))

	// Set defaults
	viper.SetDefault("target.board", string(target.DefaultBoard))
	viper.SetDefault("target.platform", string(target.DefaultPlatform))
	viper.SetDefault("target.profile", string(target.DefaultProfile))
	viper.SetDefault("build.base_dir", "")
	viper.SetDefault("build.archive_format", string(archive.DefaultFormat))
	viper.SetDefault("publish.enabled", false)
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.path", "~/.buildimage/artifacts")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.path_style", true)
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.path", "")

	// Toolchain defaults (config file only)
	viper.SetDefault("toolchain.go_binary", toolchain.DefaultGoBinary)
	viper.SetDefault("toolchain.import_path", toolchain.DefaultImportPath)
	viper.SetDefault("toolchain.dep_install", toolchain.DefaultDepInstall)
	viper.SetDefault("toolchain.dep_resolve", toolchain.DefaultDepResolve)

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	opts := cli.DefaultConfigOptions("buildimage", "BUILDIMAGE")
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(opts); err != nil {
		return errors.ErrInvalidConfig.WithCause(err)
	}

	log = cli.InitLogger(logs.DefaultName)
	migrations.SetLogger(log)

	return nil
}

// runImage builds the selected target, or cleans it with --clean
func runImage(cmd *cobra.Command, args []string) error {
	clean, _ := cmd.Flags().GetBool("clean")

	t, err := target.Parse(
		viper.GetString("target.board"),
		viper.GetString("target.platform"),
		string(target.DeviceOpenRAP),
		viper.GetString("target.profile"),
	)
	if err != nil {
		return err
	}

	baseDir, err := baseDirectory()
	if err != nil {
		return err
	}

	format, err := archive.ParseFormat(viper.GetString("build.archive_format"))
	if err != nil {
		return err
	}

	var backend storage.Backend
	if viper.GetBool("publish.enabled") && !clean {
		if backend, err = newStorage(); err != nil {
			return err
		}
	}

	command := commandBuild
	if clean {
		command = commandClean
	}
	var observer pipeline.Observer
	rec := openHistory(baseDir, t, command)
	if rec != nil {
		observer = rec
	}

	p, err := pipeline.New(pipeline.Options{
		Target:        t,
		BaseDir:       baseDir,
		Logger:        log,
		Toolchain:     toolchainConfig(baseDir),
		ArchiveFormat: format,
		Storage:       backend,
		Observer:      observer,
	})
	if err != nil {
		rec.finish(nil, err)
		return err
	}
	defer p.Close()

	var res *pipeline.Result
	if clean {
		res, err = p.Clean(cmd.Context())
	} else {
		res, err = p.Build(cmd.Context())
	}
	rec.finish(res, err)
	if err != nil {
		return err
	}

	log.Info("done", "target", t.String(), "state", res.State)
	return nil
}

// baseDirectory returns the absolute source checkout directory
func baseDirectory() (string, error) {
	dir, err := paths.Resolve(cli.GetExpandedString("build.base_dir"))
	if err != nil {
		return "", errors.ErrInvalidConfig.WithMessage("cannot resolve base directory").WithCause(err)
	}
	return dir, nil
}

// toolchainConfig reads the toolchain settings for a checkout
func toolchainConfig(baseDir string) toolchain.Config {
	return toolchain.Config{
		BaseDir:    baseDir,
		GoBinary:   viper.GetString("toolchain.go_binary"),
		ImportPath: viper.GetString("toolchain.import_path"),
		DepInstall: viper.GetString("toolchain.dep_install"),
		DepResolve: viper.GetString("toolchain.dep_resolve"),
	}
}

// storageConfig reads the storage backend settings
func storageConfig() storage.Config {
	return storage.Config{
		Type: viper.GetString("storage.type"),
		Local: storage.LocalConfig{
			BasePath: cli.GetExpandedString("storage.local.path"),
		},
		S3: storage.S3Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
			UsePathStyle:    viper.GetBool("storage.s3.path_style"),
		},
	}
}

// newStorage creates the configured storage backend
func newStorage() (storage.Backend, error) {
	cfg := storageConfig()
	switch cfg.Type {
	case "local", "s3":
	default:
		return nil, errors.ErrInvalidConfig.WithMessagef("unknown storage type %q (valid: local, s3)", cfg.Type)
	}

	backend, err := storage.New(cfg)
	if err != nil {
		return nil, errors.ErrStorageUnavailable.WithCause(err)
	}
	return backend, nil
}
