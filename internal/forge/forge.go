// Package forge runs a generation end to end: it declares the collection's
// rules, reconciles every configuration, generates the editions in
// configuration order and hands each accepted edition to the ledger and
// the telemetry sinks. A Forge carries all run state explicitly; nothing
// is global.
package forge

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/dna"
	"github.com/papapumpkin/strata/internal/export"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/ledger"
	"github.com/papapumpkin/strata/internal/log"
	"github.com/papapumpkin/strata/internal/reconcile"
	"github.com/papapumpkin/strata/internal/telemetry"
)

const defaultWorkers = 4

// Forge is a single generation run over one collection. It is not
// reusable: Prepare and Run mutate the collection's trait weights.
type Forge struct {
	col      *catalog.Collection
	runID    string
	seed     uint64
	workers  int
	stateDir string

	ledger   ledger.Store
	store    export.Store
	emitter  *telemetry.Emitter
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	prior    []string
	replay   []ledger.Record
	progress func(Progress)

	rng  *rand.Rand
	reg  *compat.Registry
	res  *compat.Restrictions
	plan *Plan
}

// Option configures a Forge.
type Option func(*Forge)

// WithRunID fixes the run identifier. A random UUID is used otherwise.
func WithRunID(id string) Option { return func(f *Forge) { f.runID = id } }

// WithSeed fixes the random seed. Runs with the same seed and inputs
// produce the same editions.
func WithSeed(seed uint64) Option { return func(f *Forge) { f.seed = seed } }

// WithWorkers bounds the number of concurrent sink writes.
func WithWorkers(n int) Option {
	return func(f *Forge) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithStateDir saves the run state file in dir.
func WithStateDir(dir string) Option { return func(f *Forge) { f.stateDir = dir } }

// WithLedger appends every accepted edition to l.
func WithLedger(l ledger.Store) Option { return func(f *Forge) { f.ledger = l } }

// WithExport writes the audit and DNA list to s after a successful run.
func WithExport(s export.Store) Option { return func(f *Forge) { f.store = s } }

// WithEmitter streams run events to e.
func WithEmitter(e *telemetry.Emitter) Option { return func(f *Forge) { f.emitter = e } }

// WithMetrics records run metrics in m.
func WithMetrics(m *telemetry.Metrics) Option { return func(f *Forge) { f.metrics = m } }

// WithTracer wraps the run phases in spans.
func WithTracer(t *telemetry.Tracer) Option { return func(f *Forge) { f.tracer = t } }

// WithPrior seeds uniqueness with the DNA of an earlier batch. Their
// number must match the collection's resume count.
func WithPrior(dnas []string) Option { return func(f *Forge) { f.prior = dnas } }

// WithReplay continues an interrupted run from the editions it already
// accepted. Records must be the run's first editions, in order.
func WithReplay(recs []ledger.Record) Option { return func(f *Forge) { f.replay = recs } }

// WithProgress is called after every edition.
func WithProgress(fn func(Progress)) Option { return func(f *Forge) { f.progress = fn } }

// Progress reports generation progress.
type Progress struct {
	Config    int
	Generated int // editions of this configuration so far
	Size      int
	Done      int // editions of the run so far
	Total     int
}

// Plan is a prepared run: rules declared, counts reconciled.
type Plan struct {
	Registry     *compat.Registry
	Restrictions *compat.Restrictions
	Configs      []ConfigPlan
}

// ConfigPlan summarizes one reconciled configuration.
type ConfigPlan struct {
	Index           int
	Name            string
	Size            int
	MaxCombinations int
	Layers          []LayerPlan
}

// LayerPlan lists a layer's reconciled counts.
type LayerPlan struct {
	Name   string
	Traits []TraitPlan
}

// TraitPlan is one trait's raw and reconciled weight.
type TraitPlan struct {
	Name   string
	Raw    string
	Weight int
	Locked bool
}

// Result is the outcome of a completed run.
type Result struct {
	RunID       string
	Seed        uint64
	Editions    []Edition
	Configs     []ConfigResult
	Audit       compat.Audit
	DNA         []string // canonical DNA of every recorded edition, sorted
	RetriesUsed int
	Breakdown   []LayerBreakdown
}

// ConfigResult summarizes one configuration of a run.
type ConfigResult struct {
	Index           int
	Size            int
	Generated       int
	Replayed        int
	Retries         int
	MaxCombinations int
}

// New creates a run over col.
func New(col *catalog.Collection, opts ...Option) *Forge {
	f := &Forge{
		col:     col,
		runID:   uuid.NewString(),
		seed:    rand.Uint64(),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RunID returns the run identifier.
func (f *Forge) RunID() string { return f.runID }

// Seed returns the run seed.
func (f *Forge) Seed() uint64 { return f.seed }

// Prepare validates the collection, declares its rules and reconciles
// every configuration. It is idempotent.
func (f *Forge) Prepare(ctx context.Context) (*Plan, error) {
	if f.plan != nil {
		return f.plan, nil
	}
	if errs := catalog.Validate(f.col); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	ctx, span := f.tracer.Start(ctx, "forge.prepare")
	defer span.End()

	f.rng = rand.New(rand.NewPCG(f.seed, f.seed))
	f.reg = compat.New(f.col.Configurations)
	if err := DeclareRules(f.reg, f.col); err != nil {
		return nil, err
	}

	plan := &Plan{Registry: f.reg}
	for _, cfg := range f.col.Configurations {
		_, cspan := f.tracer.Start(ctx, "forge.reconcile", attribute.Int("configuration", cfg.Index))
		start := time.Now()
		r := reconcile.New(f.col.Ladder, f.rng,
			reconcile.WithExactWeight(f.col.ExactWeight),
			reconcile.WithAllowDuplicates(f.col.AllowDuplicates),
			reconcile.WithRetryBudget(f.col.RetryBudget),
			reconcile.WithZeroCounts(f.col.BypassZeroProtection),
			reconcile.WithOneOfOne(f.col.OneOfOne),
		)
		err := r.Reconcile(cfg, f.reg)
		f.metrics.ReconcileDuration(cfg.Index, time.Since(start))
		cspan.End()
		if err != nil {
			return nil, err
		}

		combos := f.reg.MaxCombinations(cfg.Index)
		f.metrics.MaxCombinations(cfg.Index, combos)
		f.metrics.RemainingCombinations(cfg.Index, combos)
		f.emit(telemetry.KindConfigReconciled, cfg.Index, map[string]int{"max_combinations": combos, "size": cfg.Size})
		log.Info(log.CatReconcile, "configuration reconciled", "config", cfg.Index, "size", cfg.Size, "max_combinations", combos)
		plan.Configs = append(plan.Configs, planOf(cfg, combos))
	}
	f.res = f.reg.BuildLayerRestrictions()
	plan.Restrictions = f.res
	f.plan = plan
	return plan, nil
}

func planOf(cfg *catalog.Configuration, combos int) ConfigPlan {
	cp := ConfigPlan{Index: cfg.Index, Name: cfg.NamePrefix, Size: cfg.Size, MaxCombinations: combos}
	for _, l := range cfg.Layers {
		lp := LayerPlan{Name: l.Name}
		for _, t := range l.Traits {
			lp.Traits = append(lp.Traits, TraitPlan{Name: t.Name, Raw: t.RawWeight, Weight: t.Weight, Locked: t.Locked})
		}
		cp.Layers = append(cp.Layers, lp)
	}
	return cp
}

// Run prepares the collection if needed and generates every edition. Any
// error aborts the run; editions already appended to the ledger stay
// there so the run can be continued.
func (f *Forge) Run(ctx context.Context) (*Result, error) {
	st := &State{Version: 1, RunID: f.runID, Seed: RunSeed(f.seed), Status: StatusRunning, StartedAt: time.Now().UTC()}
	for _, cfg := range f.col.Configurations {
		st.Configs = append(st.Configs, ConfigStatus{Index: cfg.Index, Size: cfg.Size, Status: StatusPending})
	}
	f.saveState(st)
	f.emit(telemetry.KindRunStart, -1, map[string]any{"seed": f.seed, "size": f.col.Size})
	log.Info(log.CatPipeline, "run started", "run", f.runID, "seed", f.seed, "size", f.col.Size)

	res, err := f.run(ctx, st)
	if err != nil {
		st.Status, st.Error = StatusFailed, err.Error()
		f.saveState(st)
		f.emit(telemetry.KindRunFailed, -1, map[string]string{"error": err.Error(), "kind": outcome(err)})
		f.metrics.RunFinished(outcome(err))
		log.ErrorErr(log.CatPipeline, "run failed", err, "run", f.runID)
		return nil, err
	}

	st.Status = StatusDone
	f.saveState(st)
	f.emit(telemetry.KindRunDone, -1, map[string]int{"editions": len(res.Editions), "retries": res.RetriesUsed})
	f.metrics.RunFinished(outcome(nil))
	log.Info(log.CatPipeline, "run finished", "run", f.runID, "editions", len(res.Editions))
	return res, nil
}

func (f *Forge) run(ctx context.Context, st *State) (*Result, error) {
	ctx, span := f.tracer.Start(ctx, "forge.run", attribute.String("run", f.runID))
	defer span.End()

	plan, err := f.Prepare(ctx)
	if err != nil {
		return nil, err
	}

	tracker := dna.NewTracker()
	if len(f.prior) != f.col.Resume {
		return nil, fault.Configf(fault.With(fault.Field("collection.resume")),
			"resume is %d but %d prior DNA entries were supplied", f.col.Resume, len(f.prior))
	}
	if err := tracker.Seed(f.prior); err != nil {
		return nil, fault.Configf(fault.With(fault.Field("collection.resume")), "prior DNA: %v", err)
	}

	numbers := f.col.EditionNumbers()
	if f.col.ShuffleEditions {
		f.rng.Shuffle(len(numbers), func(i, j int) { numbers[i], numbers[j] = numbers[j], numbers[i] })
	}
	replays, err := f.checkReplay(numbers)
	if err != nil {
		return nil, err
	}

	budget := dna.NewRetryBudget(f.col.RetryBudget)
	res := &Result{RunID: f.runID, Seed: f.seed}
	run := &runState{numbers: numbers, tracker: tracker, budget: budget, result: res, state: st}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	run.group = g
	for i, cfg := range f.col.Configurations {
		cr, err := f.generate(gctx, run, cfg, replays[cfg.Index])
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}
		cr.MaxCombinations = plan.Configs[i].MaxCombinations
		res.Configs = append(res.Configs, cr)
		st.Configs[i].Status = StatusDone
		f.saveState(st)
		f.emit(telemetry.KindConfigDone, cfg.Index, cr)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Audit = f.reg.Export(f.res)
	res.DNA = tracker.Export()
	res.RetriesUsed = budget.Used
	res.Breakdown = Breakdown(res.Editions)
	if err := f.writeArtifacts(ctx, run.records); err != nil {
		return nil, err
	}
	return res, nil
}

// runState is the mutable state shared by the configurations of a run.
type runState struct {
	numbers []int
	tracker *dna.Tracker
	budget  *dna.RetryBudget
	group   *errgroup.Group
	result  *Result
	state   *State
	records []ledger.Record
	seq     int
}

func (f *Forge) generate(ctx context.Context, run *runState, cfg *catalog.Configuration, replays []ledger.Record) (ConfigResult, error) {
	ctx, span := f.tracer.Start(ctx, "forge.generate", attribute.Int("configuration", cfg.Index))
	defer span.End()

	cr := ConfigResult{Index: cfg.Index, Size: cfg.Size}
	gen := dna.NewGenerator(cfg, f.reg, f.res, run.tracker, f.rng,
		dna.WithAllowDuplicates(f.col.AllowDuplicates),
		dna.WithRetryBudget(run.budget),
		dna.WithOneOfOne(f.col.OneOfOne),
	)
	st := &run.state.Configs[cfg.Index]
	st.Status = StatusRunning

	for _, rec := range replays {
		d, err := dna.Parse(rec.DNA)
		if err != nil {
			return cr, fault.Configf(fault.With(fault.Config(cfg.Index)), "replayed edition %d: %v", rec.Seq, err)
		}
		if err := gen.Replay(d); err != nil {
			return cr, fault.Annotate(err, fault.Field("replay"))
		}
		ed := f.edition(cfg, run.seq, run.numbers[run.seq], d, traitsOf(cfg, d))
		ed.Replayed = true
		run.result.Editions = append(run.result.Editions, ed)
		run.records = append(run.records, rec)
		run.seq++
		cr.Replayed++
		f.metrics.EditionReplayed(cfg.Index)
		f.emit(telemetry.KindEditionReplayed, cfg.Index, map[string]any{"edition": ed.Number, "dna": rec.DNA})
	}
	if cr.Replayed > 0 {
		log.Info(log.CatLedger, "editions replayed", "config", cfg.Index, "count", cr.Replayed)
	}

	for gen.Accepted() < cfg.Size {
		if err := ctx.Err(); err != nil {
			return cr, err
		}
		e, err := gen.Next()
		if err != nil {
			return cr, err
		}
		ed := f.edition(cfg, run.seq, run.numbers[run.seq], e.DNA, e.Traits)
		ed.Pinned, ed.Retries = e.Pinned, e.Retries
		run.result.Editions = append(run.result.Editions, ed)
		cr.Generated++
		cr.Retries += e.Retries

		rec := ledger.Record{RunID: f.runID, Seq: run.seq, Config: cfg.Index, Edition: ed.Number, DNA: e.DNA.String(), CreatedAt: time.Now().UTC()}
		run.records = append(run.records, rec)
		if f.ledger != nil {
			run.group.Go(func() error {
				if err := f.ledger.Append(ctx, rec); err != nil {
					return fmt.Errorf("ledger: %w", err)
				}
				return nil
			})
		}

		f.metrics.EditionAccepted(cfg.Index)
		f.metrics.Collisions(cfg.Index, e.Retries)
		f.metrics.RetryBudget(run.budget.Limit - run.budget.Used)
		if e.Retries > 0 {
			f.emit(telemetry.KindCollision, cfg.Index, map[string]int{"edition": ed.Number, "retries": e.Retries})
		}
		remaining := gen.RemainingCombinations()
		f.metrics.RemainingCombinations(cfg.Index, remaining)
		f.emit(telemetry.KindEditionAccepted, cfg.Index, map[string]any{"edition": ed.Number, "dna": rec.DNA, "remaining_combinations": remaining})

		run.seq++
		st.Generated = gen.Accepted()
		run.state.Editions = run.seq
		if f.progress != nil {
			f.progress(Progress{Config: cfg.Index, Generated: gen.Accepted(), Size: cfg.Size, Done: run.seq, Total: f.col.Size})
		}
	}
	st.Generated = gen.Accepted()
	return cr, nil
}

func (f *Forge) edition(cfg *catalog.Configuration, seq, number int, d dna.DNA, traits []*catalog.Trait) Edition {
	prefix := cfg.NamePrefix
	if prefix == "" {
		prefix = f.col.Name
	}
	attrs := attributes(f.col, cfg, traits)
	if f.col.OneOfOne {
		for i := range attrs {
			attrs[i].Value = fmt.Sprintf("%s #%d/%d", f.col.Name, number, f.col.Size)
		}
	}
	return Edition{
		Seq:        seq,
		Number:     number,
		Config:     cfg.Index,
		Name:       fmt.Sprintf("%s #%d", prefix, number),
		DNA:        d,
		Attributes: attrs,
	}
}

// checkReplay validates the replay records against the run's layout and
// groups them by configuration.
func (f *Forge) checkReplay(numbers []int) (map[int][]ledger.Record, error) {
	out := make(map[int][]ledger.Record)
	if len(f.replay) == 0 {
		return out, nil
	}
	recs := append([]ledger.Record(nil), f.replay...)
	ledger.Sort(recs)
	if len(recs) > f.col.Size {
		return nil, fault.Configf(fault.With(fault.Field("replay"), fault.Size(f.col.Size)), "%d replayed editions exceed the collection", len(recs))
	}

	configOf := make([]int, 0, f.col.Size)
	for _, cfg := range f.col.Configurations {
		for range cfg.Size {
			configOf = append(configOf, cfg.Index)
		}
	}
	for i, rec := range recs {
		opts := fault.With(fault.Field("replay"), fault.Config(rec.Config))
		switch {
		case rec.RunID != f.runID:
			return nil, fault.Configf(opts, "edition %d belongs to run %q", rec.Seq, rec.RunID)
		case rec.Seq != i:
			return nil, fault.Configf(opts, "replayed editions are not contiguous at %d", i)
		case rec.Config != configOf[i]:
			return nil, fault.Configf(opts, "edition %d was generated for configuration %d, expected %d", rec.Seq, rec.Config, configOf[i])
		case rec.Edition != numbers[i]:
			return nil, fault.Configf(opts, "edition %d is numbered %d, expected %d; was the seed changed?", rec.Seq, rec.Edition, numbers[i])
		}
		out[rec.Config] = append(out[rec.Config], rec)
	}
	return out, nil
}

func (f *Forge) writeArtifacts(ctx context.Context, recs []ledger.Record) error {
	if f.store == nil {
		return nil
	}
	info, err := export.WriteAudit(ctx, f.store, f.runID, f.reg.Export(f.res))
	if err != nil {
		return err
	}
	f.emit(telemetry.KindArtifactWritten, -1, info)
	log.Info(log.CatExport, "audit written", "key", info.Key, "driver", string(f.store.Driver()))

	info, err = export.WriteDNA(ctx, f.store, f.runID, export.DNAFile{RunID: f.runID, Editions: recs})
	if err != nil {
		return err
	}
	f.emit(telemetry.KindArtifactWritten, -1, info)
	log.Info(log.CatExport, "dna written", "key", info.Key, "editions", len(recs))
	return nil
}

func (f *Forge) emit(kind string, config int, data any) {
	evt := telemetry.Event{Kind: kind, RunID: f.runID, Data: data}
	if config >= 0 {
		evt.Config = telemetry.ForConfig(config)
	}
	if err := f.emitter.Emit(evt); err != nil {
		log.Warn(log.CatPipeline, "telemetry emit failed", "error", err)
	}
}

func (f *Forge) saveState(st *State) {
	if f.stateDir == "" {
		return
	}
	if err := SaveState(f.stateDir, st); err != nil {
		log.Warn(log.CatPipeline, "state save failed", "error", err)
	}
}

// outcome labels a run result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, fault.ErrConfig):
		return "config"
	case errors.Is(err, fault.ErrConstraint):
		return "constraint"
	case errors.Is(err, fault.ErrCapacity):
		return "capacity"
	case errors.Is(err, fault.ErrInvariant):
		return "invariant"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
