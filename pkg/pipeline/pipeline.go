// Package pipeline runs an ordered list of stages over a mesh.
//
// A run uploads the host mesh to the kernel once, applies every stage in
// order against the same device mesh, and downloads the result. In
// isolated mode each stage gets its own upload and download instead, which
// makes every intermediate result observable at the cost of extra copies.
// Whatever happens, no kernel memory outlives the run.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chazu/meshforge/pkg/device"
	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/chazu/meshforge/pkg/stage"
	"github.com/google/uuid"
)

// Pipeline is an ordered sequence of stages bound to a kernel.
// The order of Stages is significant and never changed.
type Pipeline struct {
	Kernel  kernel.Kernel
	Stages  []stage.Stage
	Isolate bool
	Logger  *slog.Logger
}

// StageReport describes one executed stage.
type StageReport struct {
	Index          int           `json:"index"`
	Stage          string        `json:"stage"`
	VerticesBefore int           `json:"vertices_before"`
	FacesBefore    int           `json:"faces_before"`
	VerticesAfter  int           `json:"vertices_after"`
	FacesAfter     int           `json:"faces_after"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Report describes a pipeline run. Stages lists the stages that
// completed, in order.
type Report struct {
	RunID   string        `json:"run_id"`
	Stages  []StageReport `json:"stages"`
	Elapsed time.Duration `json:"elapsed"`
}

// StageError is a failure attributed to one stage of a run.
type StageError struct {
	Index  int
	Stage  string
	Params string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %d %s: %v", e.Index, e.Params, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// New returns a pipeline running stages on k.
func New(k kernel.Kernel, stages ...stage.Stage) *Pipeline {
	return &Pipeline{Kernel: k, Stages: stages}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Validate checks the configuration of every stage without running
// anything.
func (p *Pipeline) Validate() error {
	if p.Kernel == nil {
		return errors.New("pipeline: no kernel")
	}
	for i, s := range p.Stages {
		if err := stage.Validate(s); err != nil {
			return stageError(i, s, err)
		}
	}
	return nil
}

// Run applies the stages to m and returns the resulting mesh. m itself is
// never modified. The mesh and every stage are validated before anything
// is allocated in the kernel. On failure the report lists the stages that
// completed before the failing one.
func (p *Pipeline) Run(m *kernel.Mesh) (*kernel.Mesh, *Report, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	rep := &Report{RunID: uuid.NewString()}
	log := p.logger().With("run_id", rep.RunID)
	log.Info("pipeline start",
		"mesh", m.Name,
		"vertices", m.VertexCount(),
		"faces", m.FaceCount(),
		"stages", len(p.Stages),
		"isolate", p.Isolate)

	start := time.Now()
	var (
		out *kernel.Mesh
		err error
	)
	if p.Isolate {
		out, err = p.runIsolated(m, rep, log)
	} else {
		out, err = p.runShared(m, rep, log)
	}
	rep.Elapsed = time.Since(start)
	if err != nil {
		log.Error("pipeline failed", "error", err, "elapsed", rep.Elapsed)
		return nil, rep, err
	}
	log.Info("pipeline done",
		"vertices", out.VertexCount(),
		"faces", out.FaceCount(),
		"elapsed", rep.Elapsed)
	return out, rep, nil
}

// runShared converts once and runs every stage on the same device mesh.
func (p *Pipeline) runShared(m *kernel.Mesh, rep *Report, log *slog.Logger) (*kernel.Mesh, error) {
	d, err := device.Upload(p.Kernel, m)
	if err != nil {
		return nil, err
	}
	defer d.Release()

	for i, s := range p.Stages {
		if err := p.apply(d, i, s, rep, log); err != nil {
			return nil, err
		}
	}
	return d.Download()
}

// runIsolated gives every stage its own upload and download.
func (p *Pipeline) runIsolated(m *kernel.Mesh, rep *Report, log *slog.Logger) (*kernel.Mesh, error) {
	cur := m
	for i, s := range p.Stages {
		next, err := func() (*kernel.Mesh, error) {
			d, err := device.Upload(p.Kernel, cur)
			if err != nil {
				return nil, stageError(i, s, err)
			}
			defer d.Release()
			if err := p.apply(d, i, s, rep, log); err != nil {
				return nil, err
			}
			return d.Download()
		}()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if cur == m {
		return m.Clone(), nil
	}
	return cur, nil
}

// apply runs one stage and records it in rep.
func (p *Pipeline) apply(d *device.Mesh, i int, s stage.Stage, rep *Report, log *slog.Logger) error {
	vb, fb, err := d.Counts()
	if err != nil {
		return stageError(i, s, err)
	}
	d.SetLogger(log.With("stage", s.Name(), "index", i))
	start := time.Now()
	if err := s.Apply(d); err != nil {
		return stageError(i, s, err)
	}
	elapsed := time.Since(start)
	va, fa, err := d.Counts()
	if err != nil {
		return stageError(i, s, err)
	}

	sr := StageReport{
		Index:          i,
		Stage:          s.Name(),
		VerticesBefore: vb,
		FacesBefore:    fb,
		VerticesAfter:  va,
		FacesAfter:     fa,
		Elapsed:        elapsed,
	}
	rep.Stages = append(rep.Stages, sr)
	log.Info("stage done",
		"stage", sr.Stage,
		"index", sr.Index,
		"vertices_before", sr.VerticesBefore,
		"faces_before", sr.FacesBefore,
		"vertices_after", sr.VerticesAfter,
		"faces_after", sr.FacesAfter,
		"elapsed", sr.Elapsed)
	return nil
}

func stageError(i int, s stage.Stage, err error) error {
	if s == nil {
		return &StageError{Index: i, Stage: "<nil>", Params: "<nil>", Err: err}
	}
	return &StageError{Index: i, Stage: s.Name(), Params: stage.Describe(s), Err: err}
}
