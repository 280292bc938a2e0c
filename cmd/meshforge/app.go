package main

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/chazu/meshforge/pkg/kernel/cpu"
	"github.com/chazu/meshforge/pkg/meshio"
	"github.com/chazu/meshforge/pkg/pipeline"
	"github.com/chazu/meshforge/pkg/recipe"
	"github.com/chazu/meshforge/pkg/stage"
)

// defaultFolder is where exports go when no prefix is given.
const defaultFolder = "3D"

// App ties mesh IO, the kernel and the recipe engine together. Every
// command is a call to Process, directly or through RunRecipe.
type App struct {
	engine *recipe.Engine
	kernel kernel.Kernel
	io     *meshio.IO
	logger *slog.Logger
}

// Result is the JSON-serializable outcome of one processed mesh.
type Result struct {
	Input    string                 `json:"input"`
	Output   string                 `json:"output"`
	RunID    string                 `json:"run_id"`
	Vertices int                    `json:"vertices"`
	Faces    int                    `json:"faces"`
	HasUV    bool                   `json:"has_uv"`
	Stages   []pipeline.StageReport `json:"stages"`
}

// NewApp returns an App using the CPU kernel.
func NewApp(cfg meshio.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	io := meshio.New(cfg)
	io.Logger = logger
	return &App{
		engine: recipe.NewEngine(),
		kernel: cpu.New(),
		io:     io,
		logger: logger,
	}
}

// Process loads input, runs stages on it and exports the result to
// target. An empty target prefix exports to "3D/{mesh name}".
func (a *App) Process(input string, stages []stage.Stage, target recipe.Export, isolate bool) (*Result, error) {
	m, err := a.io.Load(input)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(a.kernel, stages...)
	p.Isolate = isolate
	p.Logger = a.logger
	out, rep, err := p.Run(m)
	if err != nil {
		return nil, err
	}

	prefix := target.Prefix
	if prefix == "" {
		prefix = path.Join(defaultFolder, m.Name)
	}
	out.Name = m.Name
	rel, err := a.io.Export(out, prefix, target.Format, target.Preview)
	if err != nil {
		return nil, err
	}
	return &Result{
		Input:    input,
		Output:   rel,
		RunID:    rep.RunID,
		Vertices: out.VertexCount(),
		Faces:    out.FaceCount(),
		HasUV:    out.HasUV(),
		Stages:   rep.Stages,
	}, nil
}

// RunRecipe evaluates the recipe file and processes input with its
// stages. override, when non-nil, replaces the recipe's export target.
func (a *App) RunRecipe(input, recipePath string, override *recipe.Export, isolate bool) (*Result, error) {
	r, err := a.engine.EvaluateFile(recipePath)
	if err != nil {
		return nil, err
	}
	target := recipe.Export{Format: meshio.GLB}
	switch {
	case override != nil:
		target = *override
	case r.Export != nil:
		target = *r.Export
	}
	if len(r.Stages) == 0 {
		a.logger.Warn("recipe has no stages", "recipe", recipePath)
	}
	res, err := a.Process(input, r.Stages, target, isolate)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", recipePath, err)
	}
	return res, nil
}
