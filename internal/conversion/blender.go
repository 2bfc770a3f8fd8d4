// Package conversion drives the 3D application that imports the scene and
// writes the project file.
package conversion

import (
	"context"
	_ "embed"
	"encoding/json"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed driver.py
var driverScript []byte

const (
	StepReset  = "reset"
	StepImport = "import"
	StepScale  = "rescale"
	StepPack   = "pack_images"
	StepSave   = "save"
)

// Step is one entry of the plan handed to the driver script.
type Step struct {
	Op       string  `json:"op"`
	Operator string  `json:"operator,omitempty"`
	Filepath string  `json:"filepath,omitempty"`
	Factor   float64 `json:"factor,omitempty"`
}

// Plan is the document written to plan.json.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Runner runs an external program, writing its combined output to stdout.
type Runner func(ctx context.Context, stdout io.Writer, name string, args ...string) error

func execRunner(ctx context.Context, stdout io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	return cmd.Run()
}

type BlenderOptions struct {
	Path           string
	ImportOperator string
	FactoryStartup bool
	Timeout        time.Duration
	ExtraArgs      []string
}

// Blender implements Host by recording the requested steps and replaying
// them in a single background Blender process when SaveProject is called.
type Blender struct {
	opts     BlenderOptions
	logger   *zap.Logger
	run      Runner
	lookPath func(string) (string, error)

	steps []Step
	// Stats from the last run.
	Imported int
	Packed   int
	// PackFailed names images left unpacked because their file is missing.
	PackFailed []string
}

func NewBlender(opts BlenderOptions, logger *zap.Logger) *Blender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Path == "" {
		opts.Path = "blender"
	}
	if opts.ImportOperator == "" {
		opts.ImportOperator = "wm.collada_import"
	}
	return &Blender{
		opts:     opts,
		logger:   logger.With(zap.String("component", "blender")),
		run:      execRunner,
		lookPath: exec.LookPath,
	}
}

func (b *Blender) ResetWorkspace(ctx context.Context) error {
	b.steps = []Step{{Op: StepReset}}
	return ctx.Err()
}

func (b *Blender) ImportScene(ctx context.Context, scenePath string) error {
	abs, err := filepath.Abs(scenePath)
	if err != nil {
		return errors.Wrapf(err, "could not resolve %s", scenePath)
	}
	return b.record(ctx, Step{Op: StepImport, Operator: b.opts.ImportOperator, Filepath: abs})
}

func (b *Blender) Rescale(ctx context.Context, factor float64) error {
	if !(factor > 0) || math.IsInf(factor, 1) {
		return errors.Errorf("scale factor must be positive, got %v", factor)
	}
	return b.record(ctx, Step{Op: StepScale, Factor: factor})
}

func (b *Blender) PackImages(ctx context.Context) error {
	return b.record(ctx, Step{Op: StepPack})
}

// SaveProject runs the recorded plan and writes projectPath.
func (b *Blender) SaveProject(ctx context.Context, projectPath string) error {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return errors.Wrapf(err, "could not resolve %s", projectPath)
	}
	if err := b.record(ctx, Step{Op: StepSave, Filepath: abs}); err != nil {
		return err
	}
	plan := Plan{Steps: b.steps}
	b.steps = nil
	return b.execute(ctx, plan, abs)
}

func (b *Blender) record(ctx context.Context, s Step) error {
	if len(b.steps) == 0 {
		return ErrNotReset
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.steps = append(b.steps, s)
	return nil
}

func (b *Blender) execute(ctx context.Context, plan Plan, output string) error {
	bin, err := b.lookPath(b.opts.Path)
	if err != nil {
		return &CapabilityError{Operation: "blender executable " + b.opts.Path, Err: err}
	}

	work, err := os.MkdirTemp("", "dae2blend-host-")
	if err != nil {
		return errors.Wrap(err, "could not create host work directory")
	}
	defer os.RemoveAll(work)

	scriptPath := filepath.Join(work, "driver.py")
	if err := os.WriteFile(scriptPath, driverScript, 0o644); err != nil {
		return errors.Wrap(err, "could not write driver script")
	}
	planData, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode plan")
	}
	planPath := filepath.Join(work, "plan.json")
	if err := os.WriteFile(planPath, planData, 0o644); err != nil {
		return errors.Wrap(err, "could not write plan")
	}

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	out := newMarkerWriter(b.logger)
	start := time.Now()
	b.logger.Info("running blender", zap.String("bin", bin), zap.Int("steps", len(plan.Steps)))
	runErr := b.run(ctx, out, bin, b.args(scriptPath, planPath)...)
	out.Flush()

	b.Imported, b.Packed, b.PackFailed = out.imported, out.packed, out.packFailed

	if out.missing != "" {
		return &CapabilityError{Operation: out.missing}
	}
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = errors.Wrap(ctxErr, runErr.Error())
		}
		return &HostError{Step: out.step, Detail: out.failure, Err: runErr}
	}
	if out.failure != "" {
		return &HostError{Step: out.step, Detail: out.failure}
	}
	if !out.done {
		return &HostError{Step: out.step, Detail: "driver script did not finish"}
	}
	if _, err := os.Stat(output); err != nil {
		return &HostError{Step: StepSave, Detail: "project file was not written", Err: err}
	}

	b.logger.Info("blender finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("imported_objects", out.imported),
		zap.Int("packed_images", out.packed),
		zap.Int("unpacked_images", len(out.packFailed)),
	)
	return nil
}

func (b *Blender) args(scriptPath, planPath string) []string {
	args := []string{"-b"}
	if b.opts.FactoryStartup {
		args = append(args, "--factory-startup")
	}
	args = append(args, b.opts.ExtraArgs...)
	return append(args, "--python-exit-code", "1", "-P", scriptPath, "--", planPath)
}
