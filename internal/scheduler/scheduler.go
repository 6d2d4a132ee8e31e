// Package scheduler drives a crate's codegen units through a bounded worker
// pool and fills the crate's result slot once every unit has finished.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"forge/internal/backend"
	"forge/internal/diag"
	"forge/internal/jobserver"
	"forge/internal/outputs"
	"forge/internal/trace"
	"forge/internal/trans"
	"forge/internal/workproduct"
)

// IRBuilder fills a freshly allocated module with the unit's IR.
type IRBuilder interface {
	BuildIR(ctx context.Context, u trans.CodegenUnit, h *backend.Handle) error
}

// Materializer copies a reused unit's saved files to where this build wants them.
type Materializer interface {
	Materialize(wp workproduct.WorkProduct, dest func(outputs.Kind) string) error
}

// Saver records a freshly built unit's files for later builds.
type Saver interface {
	Save(wp workproduct.WorkProduct, files map[outputs.Kind]string) (workproduct.WorkProduct, error)
}

// Plan is the crate's partition into codegen units. It must contain exactly
// one metadata unit and at most one allocator unit.
type Plan struct {
	Units []trans.CodegenUnit
}

// Scheduler runs codegen units in parallel.
type Scheduler struct {
	Backend backend.Backend
	IR      IRBuilder
	// Store is consulted for reuse; it may also implement Materializer and
	// Saver. Nil disables reuse.
	Store workproduct.Store
	// Limiter bounds concurrent units across processes. Nil means a local
	// limiter of Jobs tokens.
	Limiter jobserver.Limiter
	Jobs    int
	Outputs outputs.Filenames

	EmitBitcode bool
	// NoIntegratedAs makes regular units emit the crate assembly file that
	// Join later assembles.
	NoIntegratedAs bool

	Reporter diag.Reporter
	Observer func(UnitEvent)
}

// UnitPhase is where a unit is in the pool.
type UnitPhase uint8

const (
	UnitQueued UnitPhase = iota
	UnitWorking
	UnitDone
	UnitFailed
)

// UnitEvent reports progress of one unit.
type UnitEvent struct {
	Unit    string
	Phase   UnitPhase
	Reused  bool
	Err     error
	Elapsed time.Duration
}

func (s *Scheduler) notify(ev UnitEvent) {
	if s.Observer != nil {
		s.Observer(ev)
	}
}

// Run processes every unit of plan and completes ongoing. Units are processed
// in no particular order. A fatal diagnostic raised by a worker is re-raised
// here after the pool drained; any other worker failure is returned and the
// result slot is left empty.
func (s *Scheduler) Run(ctx context.Context, ongoing *trans.OngoingCrateTranslation, plan Plan) error {
	if ongoing == nil {
		return errors.New("scheduler: no crate to complete")
	}
	if s.Backend == nil || s.IR == nil {
		return errors.New("scheduler: backend and IR builder are required")
	}
	if err := checkPlan(plan); err != nil {
		return err
	}
	jobs := s.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	limiter := s.Limiter
	if limiter == nil {
		limiter = jobserver.NewLocal(jobs)
	}

	ctx, span := trace.Start(ctx, trace.ScopePass, "codegen")
	defer span.End(ongoing.CrateName())
	span.WithExtra("units", strconv.Itoa(len(plan.Units))).WithExtra("jobs", strconv.Itoa(jobs))

	for _, u := range plan.Units {
		s.notify(UnitEvent{Unit: u.Name, Phase: UnitQueued})
	}

	results := make([]trans.CompiledModule, len(plan.Units))
	panics := make([]any, len(plan.Units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(plan.Units)))
	for i, u := range plan.Units {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					panics[i] = r
					err = fmt.Errorf("codegen unit %s panicked", u.Name)
				}
			}()
			start := time.Now()
			s.notify(UnitEvent{Unit: u.Name, Phase: UnitWorking})
			cm, err := s.runUnit(gctx, limiter, u)
			if err != nil {
				s.notify(UnitEvent{Unit: u.Name, Phase: UnitFailed, Err: err, Elapsed: time.Since(start)})
				return err
			}
			results[i] = cm
			s.notify(UnitEvent{Unit: u.Name, Phase: UnitDone, Reused: cm.PreExisting, Elapsed: time.Since(start)})
			return nil
		})
	}
	waitErr := g.Wait()

	for i, p := range panics {
		if p == nil {
			continue
		}
		if f, ok := diag.AsFatal(p); ok {
			f.Diagnostic.Unit = plan.Units[i].Name
			panic(f)
		}
		return fmt.Errorf("codegen unit %s panicked: %v", plan.Units[i].Name, p)
	}
	if waitErr != nil {
		return waitErr
	}

	ongoing.Complete(partition(results))
	return nil
}

func checkPlan(plan Plan) error {
	if len(plan.Units) == 0 {
		return errors.New("scheduler: empty plan")
	}
	var metadata, allocator int
	seen := make(map[string]struct{}, len(plan.Units))
	for _, u := range plan.Units {
		if _, dup := seen[u.Name]; dup {
			return fmt.Errorf("scheduler: duplicate codegen unit %q", u.Name)
		}
		seen[u.Name] = struct{}{}
		switch u.Kind {
		case trans.ModuleKindMetadata:
			metadata++
		case trans.ModuleKindAllocator:
			allocator++
		}
	}
	if metadata != 1 {
		return fmt.Errorf("scheduler: plan needs exactly one metadata unit, has %d", metadata)
	}
	if allocator > 1 {
		return fmt.Errorf("scheduler: plan has %d allocator units", allocator)
	}
	return nil
}

func partition(results []trans.CompiledModule) trans.CompiledModules {
	var out trans.CompiledModules
	for _, cm := range results {
		switch cm.Kind {
		case trans.ModuleKindMetadata:
			out.MetadataModule = cm
		case trans.ModuleKindAllocator:
			alloc := cm
			out.AllocatorModule = &alloc
		default:
			out.Modules = append(out.Modules, cm)
		}
	}
	return out
}
