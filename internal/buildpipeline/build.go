// Package buildpipeline turns a crate manifest into joined codegen output and
// a link plan.
package buildpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"forge/internal/backend"
	"forge/internal/backend/llvm"
	"forge/internal/diag"
	"forge/internal/jobserver"
	"forge/internal/outputs"
	"forge/internal/project"
	"forge/internal/scheduler"
	"forge/internal/trace"
	"forge/internal/trans"
	"forge/internal/workproduct"
)

// BuildRequest configures one crate build. Command-line overrides are
// expected to be applied to Manifest.Config before calling Build.
type BuildRequest struct {
	Manifest      *project.Manifest
	Profile       string
	Progress      ProgressSink
	PrintCommands bool

	// Backend, IR and Assembler replace the clang-driven defaults.
	Backend   backend.Backend
	IR        scheduler.IRBuilder
	Assembler trans.Assembler
}

// BuildResult captures the joined crate and where its link plan went.
type BuildResult struct {
	Crate       *trans.CrateTranslation
	OutDir      string
	LinkPlan    string
	Diagnostics []diag.Diagnostic
	Timings     Timings
}

// Build runs codegen for every unit of the crate, joins the result and writes
// the link plan as JSON next to the outputs.
func Build(ctx context.Context, req *BuildRequest) (result BuildResult, err error) {
	if req == nil || req.Manifest == nil {
		return result, fmt.Errorf("missing build request")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	profile := req.Profile
	if profile == "" {
		profile = "debug"
	}
	m := req.Manifest
	cfg := m.Config
	if err := m.Validate(); err != nil {
		return result, err
	}

	ctx, span := trace.Start(ctx, trace.ScopeDriver, "build")
	defer span.End(cfg.Crate.Name)

	planStart := time.Now()
	emitStage(req.Progress, StagePlan, StatusWorking, nil, 0)
	plan, err := planCrate(m, profile)
	if err != nil {
		emitStage(req.Progress, StagePlan, StatusError, err, 0)
		return result, err
	}
	result.OutDir = plan.filenames.OutDir
	if err := os.MkdirAll(plan.filenames.OutDir, 0o750); err != nil {
		return result, fmt.Errorf("failed to create output dir: %w", err)
	}

	be, ir, asm := req.Backend, req.IR, req.Assembler
	if be == nil {
		if err := llvm.EnsureClang(); err != nil {
			emitStage(req.Progress, StagePlan, StatusError, err, 0)
			return result, err
		}
		llbe := llvm.New(&llvm.Toolchain{PrintCommands: req.PrintCommands})
		be = llbe
		if ir == nil {
			ir = &llvm.Loader{Backend: llbe, Crate: cfg.Crate.Name, Metadata: plan.info.Metadata.Raw}
		}
		if asm == nil {
			asm = llbe.Toolchain()
		}
	}

	var store workproduct.Store
	if cfg.Incremental.Dir != "" {
		ds, err := workproduct.OpenDiskStore(m.Resolve(cfg.Incremental.Dir))
		if err != nil {
			return result, err
		}
		store = ds
	}

	var limiter jobserver.Limiter
	if cfg.Jobserver.Dir != "" {
		slots, err := jobserver.OpenSlots(m.Resolve(cfg.Jobserver.Dir), cfg.Jobserver.Tokens)
		if err != nil {
			return result, err
		}
		limiter = slots
	} else {
		limiter = jobserver.NewLocal(cfg.Jobserver.Tokens)
	}
	result.Timings.Set(StagePlan, time.Since(planStart))
	emitStage(req.Progress, StagePlan, StatusDone, nil, result.Timings.Duration(StagePlan))

	bag := diag.NewBag(0)
	defer func() { result.Diagnostics = bag.Items() }()

	codegenStart := time.Now()
	emitStage(req.Progress, StageCodegen, StatusWorking, nil, 0)
	ongoing := trans.NewOngoing(plan.info, cfg.Codegen.NoIntegratedAs)
	sched := &scheduler.Scheduler{
		Backend:        be,
		IR:             ir,
		Store:          store,
		Limiter:        limiter,
		Jobs:           cfg.Codegen.Jobs,
		Outputs:        plan.filenames,
		EmitBitcode:    cfg.Codegen.EmitBitcode,
		NoIntegratedAs: cfg.Codegen.NoIntegratedAs,
		Reporter:       diag.BagReporter{Bag: bag},
		Observer:       unitObserver(req.Progress),
	}
	if err := sched.Run(ctx, ongoing, plan.units); err != nil {
		emitStage(req.Progress, StageCodegen, StatusError, err, time.Since(codegenStart))
		return result, err
	}
	result.Timings.Set(StageCodegen, time.Since(codegenStart))
	emitStage(req.Progress, StageCodegen, StatusDone, nil, result.Timings.Duration(StageCodegen))

	joinStart := time.Now()
	emitStage(req.Progress, StageJoin, StatusWorking, nil, 0)
	result.Crate = ongoing.Join(ctx, trans.JoinOptions{
		Outputs:   plan.filenames,
		SaveTemps: cfg.Codegen.SaveTemps,
		Assembler: asm,
	})
	result.Timings.Set(StageJoin, time.Since(joinStart))
	emitStage(req.Progress, StageJoin, StatusDone, nil, result.Timings.Duration(StageJoin))

	linkStart := time.Now()
	if plan.filenames.Types.Contains(outputs.KindMetadata) {
		path := plan.filenames.Path(outputs.KindMetadata)
		if err := os.WriteFile(path, plan.info.Metadata.Raw, 0o600); err != nil {
			return result, fmt.Errorf("failed to write crate metadata: %w", err)
		}
	}
	result.LinkPlan = filepath.Join(plan.filenames.OutDir, cfg.Crate.Name+".link.json")
	if err := writeLinkPlan(result.LinkPlan, result.Crate); err != nil {
		emitStage(req.Progress, StageLink, StatusError, err, 0)
		return result, err
	}
	result.Timings.Set(StageLink, time.Since(linkStart))
	emitStage(req.Progress, StageLink, StatusDone, nil, result.Timings.Duration(StageLink))
	return result, nil
}

func writeLinkPlan(path string, ct *trans.CrateTranslation) error {
	data, err := json.MarshalIndent(ct, "", "  ")
	if err != nil {
		return fmt.Errorf("encode link plan: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write link plan: %w", err)
	}
	return nil
}
