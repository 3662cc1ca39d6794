// Package toolchain prepares the GOPATH workspace the backend API server is
// compiled in and describes the pinned cross-compilation environment.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/projectopenrap/buildimage/src/buildimage/runner"
	"github.com/projectopenrap/buildimage/src/common/errors"
	"github.com/projectopenrap/buildimage/src/common/logs"
	"github.com/projectopenrap/buildimage/src/common/paths"
)

// Defaults for the backend server workspace
const (
	DefaultGoBinary   = "go"
	DefaultImportPath = "github.com/projectOpenRAP/OpenRAP/apiserver"
	DefaultDepInstall = "go get -u github.com/golang/dep/cmd/dep"
	DefaultDepResolve = "dep ensure"
	SourceDirName     = "apiserver"
)

// Target platform of the compiled server binary
const (
	TargetOS   = "linux"
	TargetArch = "arm"
)

// Config describes where the workspace lives and how it is populated
type Config struct {
	BaseDir    string // source checkout; the server source is BaseDir/apiserver
	GoPath     string // workspace root (default BaseDir/build/go)
	GoBinary   string // compiler binary looked up on PATH
	ImportPath string // import path of the server package inside GOPATH
	DepInstall string // command fetching the dependency manager
	DepResolve string // command resolving server dependencies
}

// withDefaults fills unset fields
func (c Config) withDefaults() Config {
	if c.GoPath == "" {
		c.GoPath = filepath.Join(c.BaseDir, "build", "go")
	}
	if c.GoBinary == "" {
		c.GoBinary = DefaultGoBinary
	}
	if c.ImportPath == "" {
		c.ImportPath = DefaultImportPath
	}
	if c.DepInstall == "" {
		c.DepInstall = DefaultDepInstall
	}
	if c.DepResolve == "" {
		c.DepResolve = DefaultDepResolve
	}
	return c
}

// Env is a ready GOPATH workspace
type Env struct {
	cfg Config
}

// GoPath returns the workspace root
func (e *Env) GoPath() string {
	return e.cfg.GoPath
}

// GoBin returns the workspace binary directory
func (e *Env) GoBin() string {
	return filepath.Join(e.cfg.GoPath, "bin")
}

// ImportPath returns the server package import path
func (e *Env) ImportPath() string {
	return e.cfg.ImportPath
}

// sourceParent is the GOPATH directory the server source is linked into
func (e *Env) sourceParent() string {
	return filepath.Join(e.cfg.GoPath, "src", filepath.Dir(filepath.FromSlash(e.cfg.ImportPath)))
}

// Vars returns the workspace variables exported to child processes
func (e *Env) Vars() map[string]string {
	return map[string]string{
		"GOPATH":      e.cfg.GoPath,
		"GOBIN":       e.GoBin(),
		"PATH":        prependPath(e.GoBin(), os.Getenv("PATH")),
		"GO111MODULE": "off",
	}
}

// prependPath puts dir first in a PATH list, dropping any later copy of it
func prependPath(dir, list string) string {
	out := []string{dir}
	for _, p := range filepath.SplitList(list) {
		if p != dir && p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, string(os.PathListSeparator))
}

// CrossCompileVars returns the pinned environment for the server build:
// no C bindings, fixed OS and architecture.
func CrossCompileVars() map[string]string {
	return map[string]string{
		"CGO_ENABLED": "0",
		"GOOS":        TargetOS,
		"GOARCH":      TargetArch,
	}
}

// BuildCommand returns the command compiling the server binary into outDir
func (e *Env) BuildCommand(outDir string) runner.Command {
	env := e.Vars()
	for k, v := range CrossCompileVars() {
		env[k] = v
	}
	return runner.Command{
		Line: fmt.Sprintf("%s build %s", e.cfg.GoBinary, e.cfg.ImportPath),
		Dir:  outDir,
		Env:  env,
	}
}

// Missing returns the binaries from bins that are not on PATH
func Missing(bins ...string) []string {
	var missing []string
	for _, bin := range bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

// Ensure exports the workspace variables into the current process, checks
// that the compiler is installed and scaffolds the workspace once. An
// existing workspace is reused untouched.
func Ensure(ctx context.Context, cfg Config, r runner.Runner, log *logs.Logger) (*Env, error) {
	env := &Env{cfg: cfg.withDefaults()}

	// Scoped to this process and the commands it starts
	for _, k := range []string{"GOPATH", "GOBIN", "PATH"} {
		if err := os.Setenv(k, env.Vars()[k]); err != nil {
			return nil, errors.ErrToolchainSetup.WithMessagef("export %s", k).WithCause(err)
		}
	}

	if missing := Missing(env.cfg.GoBinary); len(missing) > 0 {
		log.Error("Please install GO compiler from: https://golang.org/doc/install into /usr/local")
		return nil, errors.ErrToolchainMissing.WithMessagef("%s not found on PATH", env.cfg.GoBinary)
	}

	if paths.IsDir(env.cfg.GoPath) {
		log.Info("GO dev env already exists in " + env.cfg.GoPath)
		return env, nil
	}

	log.Info("Please wait...Creating GO dev env in " + env.cfg.GoPath)

	dirs := []string{
		env.cfg.GoPath,
		env.GoBin(),
		filepath.Join(env.cfg.GoPath, "src"),
		filepath.Join(env.cfg.GoPath, "pkg"),
		env.sourceParent(),
	}
	for _, dir := range dirs {
		if err := paths.EnsureDirPath(dir); err != nil {
			return nil, errors.ErrToolchainSetup.WithMessagef("create %s", dir).WithCause(err)
		}
	}

	vars := env.Vars()

	if err := r.Run(ctx, runner.Command{Line: env.cfg.DepInstall, Env: vars}); err != nil {
		return nil, err
	}

	source := filepath.Join(env.cfg.BaseDir, SourceDirName)
	rel, err := filepath.Rel(env.sourceParent(), source)
	if err != nil {
		return nil, errors.ErrToolchainSetup.WithMessagef("link %s", source).WithCause(err)
	}
	link := filepath.Base(filepath.FromSlash(env.cfg.ImportPath))
	if err := r.Run(ctx, runner.Command{Line: fmt.Sprintf("ln -s %s %s", rel, link), Dir: env.sourceParent()}); err != nil {
		return nil, err
	}

	if err := r.Run(ctx, runner.Command{Line: env.cfg.DepResolve, Dir: filepath.Join(env.sourceParent(), link), Env: vars}); err != nil {
		return nil, err
	}

	return env, nil
}
