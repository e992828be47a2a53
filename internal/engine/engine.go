// Package engine wires the pipeline stages together: configuration
// resolution, pattern detection, graph construction, generation, and
// validation. Every command-line entry point drives an Engine.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/reapersql/reaper/internal/config"
	"github.com/reapersql/reaper/internal/depgraph"
	"github.com/reapersql/reaper/internal/detect"
	"github.com/reapersql/reaper/internal/diag"
	"github.com/reapersql/reaper/internal/generate"
	"github.com/reapersql/reaper/internal/schema"
	"github.com/reapersql/reaper/internal/validate"
)

// Engine is the core analysis engine shared by all commands.
type Engine struct {
	Config *config.Config
	Logger *slog.Logger
}

// New creates an Engine with the given config and logger.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Config: cfg, Logger: logger}
}

// Analysis holds the enriched descriptor set, its dependency graph, and
// the diagnostics accumulated while producing them.
type Analysis struct {
	Schema      *schema.Schema
	Graph       *depgraph.Graph
	Diagnostics diag.List
}

// Analyze runs detection over the raw facts and derives the graph
// fields. The raw schema is never mutated. Detection diagnostics ride
// along; only an empty input is a hard failure.
func (e *Engine) Analyze(raw *schema.Schema) (*Analysis, error) {
	if raw == nil || len(raw.Tables) == 0 {
		return nil, fmt.Errorf("no tables to analyze")
	}

	det := &detect.Detector{Config: e.Config}
	enriched, diags := det.Enrich(raw)

	graph := depgraph.Build(enriched)
	enriched = depgraph.Annotate(enriched, graph)

	e.Logger.Info("analysis complete",
		"tables", len(enriched.Tables),
		"diagnostics", diags.Len())

	return &Analysis{Schema: enriched, Graph: graph, Diagnostics: diags}, nil
}

// Validate runs the rule checks over an analysis, merging in the
// diagnostics accumulated during detection.
func (e *Engine) Validate(a *Analysis) diag.List {
	v := &validate.Validator{Config: e.Config, Schema: a.Schema, Graph: a.Graph}
	diags := v.Validate()

	var all diag.List
	all.Merge(a.Diagnostics)
	all.Merge(diags)

	e.Logger.Info("validation complete",
		"errors", len(all.Errors()),
		"warnings", len(all.Warnings()))
	return all
}

// Plan produces every SQL artifact without touching the filesystem.
func (e *Engine) Plan(a *Analysis) (*generate.Result, diag.List, error) {
	gen, err := generate.New(e.Config, a.Schema, a.Graph)
	if err != nil {
		return nil, diag.List{}, err
	}
	result, diags := gen.Generate()
	return result, diags, nil
}

// Generate produces every SQL artifact and writes it to the configured
// output directory, honoring the explicit-wins and force rules.
func (e *Engine) Generate(a *Analysis, force bool) (*generate.Result, *generate.WriteResult, diag.List, error) {
	gen, err := generate.New(e.Config, a.Schema, a.Graph)
	if err != nil {
		return nil, nil, diag.List{}, err
	}

	result, diags := gen.Generate()

	writer := &generate.Writer{
		OutputDir: e.Config.Generation.OutputDir,
		Force:     force || e.Config.Generation.Force,
		Logger:    e.Logger,
	}
	written, err := writer.Write(result.All())
	if err != nil {
		return nil, nil, diags, err
	}

	e.Logger.Info("generation complete",
		"written", len(written.Written),
		"skipped_explicit", len(written.SkippedExplicit),
		"skipped_existing", len(written.SkippedExisting))
	return result, written, diags, nil
}
