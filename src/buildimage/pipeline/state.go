package pipeline

import "fmt"

// Stage names a step of the pipeline
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageConfig  Stage = "config"
	StageBuild   Stage = "build"
	StagePackage Stage = "package"
	StagePublish Stage = "publish"
	StageClean   Stage = "clean"
)

// State is the progress of a pipeline
type State string

const (
	StateInit       State = "init"
	StatePrepared   State = "prepared"
	StateConfigured State = "configured"
	StateBuilt      State = "built"
	StatePackaged   State = "packaged"
	StatePublished  State = "published"
	StateCleaned    State = "cleaned"
)

type transition struct {
	from State
	to   State
}

// transitions lists the only state each stage may start from and where it leads
var transitions = map[Stage]transition{
	StagePrepare: {StateInit, StatePrepared},
	StageConfig:  {StatePrepared, StateConfigured},
	StageBuild:   {StateConfigured, StateBuilt},
	StagePackage: {StateBuilt, StatePackaged},
	StagePublish: {StatePackaged, StatePublished},
	StageClean:   {StateInit, StateCleaned},
}

// BuildStages is the order a build runs in
var BuildStages = []Stage{StagePrepare, StageConfig, StageBuild, StagePackage}

// Next returns the state reached by running stage from current
func Next(current State, stage Stage) (State, error) {
	t, ok := transitions[stage]
	if !ok {
		return current, fmt.Errorf("unknown stage %q", stage)
	}
	if t.from != current {
		return current, fmt.Errorf("stage %s requires state %s, pipeline is %s", stage, t.from, current)
	}
	return t.to, nil
}
