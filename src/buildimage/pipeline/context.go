// Package pipeline assembles and packages OpenRAP images.
//
// A build is the composition of four layers. Board hooks do the
// hardware-specific work, platforms delegate to their board, the device
// layer stages the common tree and compiles the API server, and the profile
// layer brands the staged tree and packages it. Each layer is a table of
// stage functions; the profile table extends the device table.
package pipeline

import (
	"path/filepath"

	"github.com/projectopenrap/buildimage/src/buildimage/archive"
	"github.com/projectopenrap/buildimage/src/buildimage/runner"
	"github.com/projectopenrap/buildimage/src/buildimage/storage"
	"github.com/projectopenrap/buildimage/src/buildimage/target"
	"github.com/projectopenrap/buildimage/src/buildimage/toolchain"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/projectopenrap/buildimage/src/common/logs"
	"github.com/projectopenrap/buildimage/src/common/paths"
)

// Names of the source tree entries, relative to the base directory
const (
	RootfsOverlayDir = "rootfs_overlay"
	CDNDir           = "CDN"
	DevMgmtDir       = "devmgmt"
	ProfilesDir      = "profile"
	BuildDir         = "build"
)

// Names inside the output directory
const (
	ImageDirName = "opencdn"
	DistDirName  = "dist"
	LogFileName  = "buildimage.log"
	VersionFile  = "version.txt"
	ProfileFile  = "profile.json"
)

// Options configure a Pipeline
type Options struct {
	Target        target.Target
	BaseDir       string           // source checkout (default: working directory)
	Logger        *logs.Logger     // console logger; the build log file is attached to it
	Runner        runner.Runner    // default: ShellRunner on Logger
	Toolchain     toolchain.Config // BaseDir defaults to the pipeline base directory
	ArchiveFormat archive.Format   // default: tgz
	Storage       storage.Backend  // nil disables publishing
	Observer      Observer
}

// BuildContext is the per-invocation environment shared by every stage.
// It is not modified after New returns.
type BuildContext struct {
	Target        target.Target
	BaseDir       string
	OutputDir     string // <base>/build/output_<platform>_<board>_<device>
	ImageDir      string // <output>/opencdn
	DistDir       string // <output>/dist
	LogPath       string // <output>/buildimage.log
	Hostname      string
	Log           *logs.Logger
	Runner        runner.Runner
	Toolchain     toolchain.Config
	ArchiveFormat archive.Format
	Storage       storage.Backend
}

// newBuildContext derives the directory layout for opts.Target, creates the
// output directory and attaches the build log file to the logger.
func newBuildContext(opts Options) (*BuildContext, error) {
	base, err := paths.Resolve(opts.BaseDir)
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithMessagef("resolve base directory %q", opts.BaseDir).WithCause(err)
	}

	log := opts.Logger
	if log == nil {
		log = logs.NewDefault()
	}

	format := opts.ArchiveFormat
	if format == "" {
		format = archive.DefaultFormat
	}

	output := filepath.Join(base, BuildDir, opts.Target.OutputDirName())
	bc := &BuildContext{
		Target:        opts.Target,
		BaseDir:       base,
		OutputDir:     output,
		ImageDir:      filepath.Join(output, ImageDirName),
		DistDir:       filepath.Join(output, DistDirName),
		LogPath:       filepath.Join(output, LogFileName),
		Hostname:      target.Hostname(string(opts.Target.Profile)),
		Log:           log,
		Runner:        opts.Runner,
		Toolchain:     opts.Toolchain,
		ArchiveFormat: format,
		Storage:       opts.Storage,
	}
	if bc.Toolchain.BaseDir == "" {
		bc.Toolchain.BaseDir = base
	}
	if bc.Runner == nil {
		bc.Runner = runner.NewShellRunner(log)
	}

	if err := paths.EnsureDirPath(bc.OutputDir); err != nil {
		return nil, errors.ErrDirectoryCreation.WithMessagef("create %s", bc.OutputDir).WithCause(err)
	}

	if err := log.AttachFile(bc.LogPath); err != nil {
		return nil, errors.ErrLogFile.WithMessagef("open %s", bc.LogPath).WithCause(err)
	}
	log.Info("Logfile: " + bc.LogPath)

	return bc, nil
}

// Source returns the path of a source tree entry
func (bc *BuildContext) Source(elem ...string) string {
	return filepath.Join(append([]string{bc.BaseDir}, elem...)...)
}

// Image returns the path of an entry in the staged image tree
func (bc *BuildContext) Image(elem ...string) string {
	return filepath.Join(append([]string{bc.ImageDir}, elem...)...)
}

// ArchivePath returns where the archive for version is written
func (bc *BuildContext) ArchivePath(version string) string {
	name := target.ArchiveBaseName(bc.Target.Device, version) + bc.ArchiveFormat.Extension()
	return filepath.Join(bc.DistDir, name)
}
