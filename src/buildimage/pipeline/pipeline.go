package pipeline

import (
	"context"
	"sync"

	"github.com/projectopenrap/buildimage/src/buildimage/target"
	"github.com/projectopenrap/buildimage/src/common/errors"
)

// Observer is notified around every stage a pipeline runs
type Observer interface {
	StageStarted(stage Stage)
	StageFinished(stage Stage, state State, err error)
}

// Result summarises a pipeline run. It is returned alongside any error so
// callers can see how far the run got.
type Result struct {
	State        State         `json:"state"`
	Target       target.Target `json:"target"`
	Version      string        `json:"version,omitempty"`
	ArchivePath  string        `json:"archive_path,omitempty"`
	ChecksumPath string        `json:"checksum_path,omitempty"`
	Checksum     string        `json:"checksum,omitempty"`
	Size         int64         `json:"size,omitempty"`
	PublishedKey string        `json:"published_key,omitempty"`
}

// Pipeline drives the stages of one target through the state machine
type Pipeline struct {
	bc       *BuildContext
	stages   map[Stage]StageFunc
	observer Observer

	mu    sync.Mutex
	state State
	run   Run
}

// New validates the target, creates the output directory and attaches the
// build log. The caller must Close the pipeline.
func New(opts Options) (*Pipeline, error) {
	t := opts.Target
	if _, err := target.Parse(string(t.Board), string(t.Platform), string(t.Device), string(t.Profile)); err != nil {
		return nil, err
	}

	bc, err := newBuildContext(opts)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		bc:       bc,
		stages:   profileStages(),
		observer: opts.Observer,
		state:    StateInit,
	}, nil
}

// Context returns the build context
func (p *Pipeline) Context() *BuildContext {
	return p.bc
}

// State returns the current state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes a single stage. Stages must run in order; a failed stage
// leaves the state unchanged.
func (p *Pipeline) Run(ctx context.Context, stage Stage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := Next(p.state, stage)
	if err != nil {
		return errors.ErrInvalidTransition.WithMessage(err.Error())
	}
	fn, ok := p.stages[stage]
	if !ok {
		return errors.ErrInvalidTransition.WithMessagef("stage %s is not implemented", stage)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.observer != nil {
		p.observer.StageStarted(stage)
	}
	p.bc.Log.Debug("stage started", "stage", stage)

	err = fn(ctx, p.bc, &p.run)
	if err == nil {
		p.state = next
	}

	p.bc.Log.Debug("stage finished", "stage", stage, "state", p.state)
	if p.observer != nil {
		p.observer.StageFinished(stage, p.state, err)
	}
	return err
}

// Build runs prepare, config, build and package, then publish when a storage
// backend is configured. It stops at the first failing stage.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	stages := append([]Stage{}, BuildStages...)
	if p.bc.Storage != nil {
		stages = append(stages, StagePublish)
	}

	for _, stage := range stages {
		if err := p.Run(ctx, stage); err != nil {
			return p.Result(), err
		}
	}
	return p.Result(), nil
}

// Clean removes the output directory of the target
func (p *Pipeline) Clean(ctx context.Context) (*Result, error) {
	err := p.Run(ctx, StageClean)
	return p.Result(), err
}

// Result returns a snapshot of what the pipeline has produced so far
func (p *Pipeline) Result() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := &Result{
		State:        p.state,
		Target:       p.bc.Target,
		Version:      p.run.Version,
		ChecksumPath: p.run.ChecksumPath,
		PublishedKey: p.run.PublishedKey,
	}
	if a := p.run.Archive; a != nil {
		r.ArchivePath = a.Path
		r.Checksum = a.Checksum
		r.Size = a.Size
	}
	return r
}

// Close detaches the build log file from the logger
func (p *Pipeline) Close() error {
	return p.bc.Log.Close()
}
