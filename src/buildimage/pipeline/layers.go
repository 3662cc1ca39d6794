package pipeline

import (
	"context"
	"fmt"

	"github.com/projectopenrap/buildimage/src/buildimage/archive"
	"github.com/projectopenrap/buildimage/src/buildimage/mutate"
	"github.com/projectopenrap/buildimage/src/buildimage/runner"
	"github.com/projectopenrap/buildimage/src/buildimage/target"
	"github.com/projectopenrap/buildimage/src/buildimage/toolchain"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/projectopenrap/buildimage/src/common/paths"
)

// Run carries what earlier stages of one pipeline hand to later ones
type Run struct {
	Toolchain    *toolchain.Env
	Version      string
	Archive      *archive.Info
	ChecksumPath string
	PublishedKey string
}

// StageFunc is one layer's implementation of a stage
type StageFunc func(ctx context.Context, bc *BuildContext, run *Run) error

// extend returns a stage running base and then each step, stopping at the
// first error
func extend(base StageFunc, steps ...StageFunc) StageFunc {
	return func(ctx context.Context, bc *BuildContext, run *Run) error {
		if err := base(ctx, bc, run); err != nil {
			return err
		}
		for _, step := range steps {
			if err := step(ctx, bc, run); err != nil {
				return err
			}
		}
		return nil
	}
}

// hook lifts a platform step into a stage
func hook(h HookFunc) StageFunc {
	return func(ctx context.Context, bc *BuildContext, run *Run) error {
		return h(ctx, bc)
	}
}

func noop(context.Context, *BuildContext, *Run) error {
	return nil
}

// announce logs msg followed by the target
func announce(msg string) StageFunc {
	return func(ctx context.Context, bc *BuildContext, run *Run) error {
		bc.Log.Info(msg + bc.Target.String())
		return nil
	}
}

// ============================================================================
// Device layer
// ============================================================================

func deviceStages() map[Stage]StageFunc {
	return map[Stage]StageFunc{
		StagePrepare: devicePrepare,
		StageConfig:  hook(platformConfig),
		StageBuild:   deviceBuild,
		StagePackage: noop,
		StageClean:   deviceClean,
	}
}

// devicePrepare readies the toolchain and the image and dist directories
func devicePrepare(ctx context.Context, bc *BuildContext, run *Run) error {
	env, err := toolchain.Ensure(ctx, bc.Toolchain, bc.Runner, bc.Log)
	if err != nil {
		return err
	}
	run.Toolchain = env

	for _, dir := range []string{bc.ImageDir, bc.DistDir} {
		if err := paths.EnsureDirPath(dir); err != nil {
			return errors.ErrDirectoryCreation.WithMessagef("create %s", dir).WithCause(err)
		}
	}

	return platformPrepare(ctx, bc)
}

// deviceBuild stages the common tree and compiles the API server into it
func deviceBuild(ctx context.Context, bc *BuildContext, run *Run) error {
	for _, dir := range []string{RootfsOverlayDir, CDNDir, DevMgmtDir} {
		if err := copyInto(ctx, bc, "cp -r", bc.Source(dir)); err != nil {
			return err
		}
	}

	if run.Toolchain == nil {
		return errors.ErrInternal.WithMessage("toolchain not prepared")
	}
	bc.Log.Info("go env path " + run.Toolchain.GoPath())
	if err := bc.Runner.Run(ctx, run.Toolchain.BuildCommand(bc.Image(CDNDir))); err != nil {
		return err
	}

	return platformBuild(ctx, bc)
}

func deviceClean(ctx context.Context, bc *BuildContext, run *Run) error {
	return bc.Runner.Run(ctx, runner.Command{Line: "rm -rf " + runner.Quote(bc.OutputDir)})
}

// copyInto copies src into the image directory through the runner
func copyInto(ctx context.Context, bc *BuildContext, cp, src string) error {
	line := fmt.Sprintf("%s %s %s", cp, runner.Quote(src), runner.Quote(bc.ImageDir))
	return bc.Runner.Run(ctx, runner.Command{Line: line})
}

// ============================================================================
// Profile layer
// ============================================================================

func profileStages() map[Stage]StageFunc {
	device := deviceStages()
	return map[Stage]StageFunc{
		StagePrepare: device[StagePrepare],
		StageConfig:  device[StageConfig],
		StageBuild:   extend(announce("building: "), device[StageBuild], profileBuild),
		StagePackage: extend(device[StagePackage], profilePackage),
		StagePublish: publish,
		// System files touched by a profile are left as they are
		StageClean: extend(announce("clean: "), device[StageClean]),
	}
}

// profileBuild overlays the profile tree and brands the staged image
func profileBuild(ctx context.Context, bc *BuildContext, run *Run) error {
	overlay := bc.Source(ProfilesDir, string(bc.Target.Profile), RootfsOverlayDir)
	if err := copyInto(ctx, bc, "cp -rf", overlay); err != nil {
		return err
	}

	if err := mutate.Hostname(bc.Image(RootfsOverlayDir, "etc", "hostname"), bc.Hostname); err != nil {
		return err
	}
	if err := mutate.Hosts(bc.Image(RootfsOverlayDir, "etc", "hosts"), bc.Hostname); err != nil {
		return err
	}
	if err := mutate.HostapdSSID(bc.Image(RootfsOverlayDir, "etc", "hostapd", "hostapd.conf"), bc.Hostname); err != nil {
		return err
	}
	return mutate.ProfileJSON(bc.Image(CDNDir, ProfileFile), string(bc.Target.Profile))
}

// profilePackage stamps the profile suffix into the version file and archives
// the image directory into the dist directory
func profilePackage(ctx context.Context, bc *BuildContext, run *Run) error {
	versionFile := bc.Image(CDNDir, VersionFile)
	version, err := mutate.ReadVersion(versionFile)
	if err != nil {
		return err
	}

	version = target.ApplySuffix(version, target.VersionSuffix(bc.Target.Profile))
	if err := mutate.WriteVersion(versionFile, version); err != nil {
		return err
	}
	run.Version = version

	info, err := archive.Create(ctx, bc.ImageDir, bc.ArchivePath(version), bc.ArchiveFormat)
	if err != nil {
		return err
	}
	run.Archive = info

	sumPath, err := archive.WriteChecksumFile(info)
	if err != nil {
		return err
	}
	run.ChecksumPath = sumPath

	bc.Log.Info("final image: "+info.Path, "sha256", info.Checksum, "size", info.Size)
	return nil
}
