// Command watchz watches a set of container-engine-managed workloads,
// compares their base images against the upstream registry on a schedule,
// and rebuilds each affected workload from the new image while preserving
// its runtime configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"ing.wik/watchz/internal/bootstrap"
	"ing.wik/watchz/internal/config"
	"ing.wik/watchz/internal/dockerapi"
	"ing.wik/watchz/internal/events"
	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/scheduler"
	"ing.wik/watchz/internal/selector"
	"ing.wik/watchz/internal/storage"
	"ing.wik/watchz/internal/update"
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv))
}

func run(args []string, getenv config.Getenv) int {
	cfg, err := config.Load(args, getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	nf, err := config.LoadNotifierFile(cfg.NotifyConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cfg.NotifyConfig != "" {
		cfg = config.ApplyNotifierFile(cfg, nf)
	}
	cfg = cfg.WithDefaults()

	if result := config.ValidateConfig(cfg); !result.IsValid() {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, "watchz: "+e)
		}
		return 2
	}

	log := newLogger(cfg)

	if cfg.Health {
		return runHealthCheck(cfg, log)
	}

	deps, cleanup, err := bootstrap.Initialize(cfg, bootstrap.Options{HistoryFile: cfg.HistoryFile}, log)
	if err != nil {
		log.Error("startup failed: %v", err)
		return 1
	}
	defer cleanup()

	if err := deps.Docker.Ping(context.Background()); err != nil {
		log.Error("cannot reach container engine: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(log)
	selCfg := selector.Config{
		Names:       cfg.Names,
		LabelEnable: cfg.LabelEnable,
		Scope:       cfg.Scope,
		MonitorOnly: cfg.MonitorOnly,
		NoPull:      cfg.NoPull,
	}

	tick := func(ctx context.Context) error {
		report, err := runTick(ctx, cfg, selCfg, deps, log)
		if err != nil {
			return err
		}
		if deps.History != nil {
			persistReport(ctx, deps.History, report, log)
		}
		return nil
	}

	if cfg.RunOnce {
		if err := sched.RunOnce(ctx, tick); err != nil {
			log.Error("scan failed: %v", err)
			return 1
		}
		return 0
	}

	log.Info("watchz starting, polling every %s", cfg.Interval)
	sched.RunPeriodic(ctx, cfg.Interval, tick)
	return 0
}

func newLogger(cfg config.Config) *logging.Logger {
	log := logging.New()
	switch {
	case cfg.Trace:
		log.SetLevel(logging.LevelTrace)
	case cfg.Debug:
		log.SetLevel(logging.LevelDebug)
	}
	return log
}

// runTick performs one scan: list -> select -> check -> update -> report.
// It mirrors the data flow in spec.md's System Overview exactly.
func runTick(ctx context.Context, cfg config.Config, selCfg selector.Config, deps *bootstrap.Dependencies, log *logging.Logger) (events.SessionReport, error) {
	aggregator := events.NewAggregator(deps.Bus, deps.Notifiers, logging.ParseLevel(cfg.NotificationLevel), cfg.NotificationReport, log)
	engine := update.NewEngine(deps.Docker, deps.Registry, aggregator, log)

	containers, err := deps.Docker.List(ctx, cfg.IncludeStopped)
	if err != nil {
		return events.SessionReport{}, fmt.Errorf("list containers: %w", err)
	}

	jobs := selectJobs(selCfg, cfg, containers)
	log.Debug("scan tick: %d containers listed, %d watched", len(containers), len(jobs))

	for _, result := range runJobs(ctx, engine, jobs, cfg.RollingRestart) {
		aggregator.Record(result)
		logResult(log, result)
	}

	return aggregator.Finalize(), nil
}

// job pairs a watched container with the per-container options its selector
// Decision produced, merged with the global CLI/env flags.
type job struct {
	container dockerapi.Container
	opts      update.Options
}

func selectJobs(selCfg selector.Config, cfg config.Config, containers []dockerapi.Container) []job {
	var jobs []job
	for _, c := range containers {
		decision := selector.Select(selCfg, c)
		if !decision.Watch {
			continue
		}
		jobs = append(jobs, job{
			container: c,
			opts: update.Options{
				NoPull:        cfg.NoPull || decision.NoPull,
				NoRestart:     cfg.NoRestart,
				Cleanup:       cfg.Cleanup,
				MonitorOnly:   cfg.MonitorOnly || decision.MonitorOnly,
				ReviveStopped: cfg.ReviveStopped,
				DryRun:        cfg.DryRun,
				StopTimeout:   int(cfg.StopTimeout / time.Second),
			},
		})
	}
	return jobs
}

// runJobs drives update(container) across jobs. Per spec.md §4.6: a single
// job or rollingRestart forces sequential execution with a settle gap
// between updates; otherwise jobs run independently, bounded by GOMAXPROCS.
// Each job carries its own Options (selector decisions can differ per
// container), so this does not reuse update.Engine.UpdateBatch, which
// assumes one Options value shared by the whole batch.
func runJobs(ctx context.Context, engine *update.Engine, jobs []job, rollingRestart bool) []update.Result {
	if rollingRestart || len(jobs) <= 1 {
		return runJobsSequential(ctx, engine, jobs)
	}
	return runJobsParallel(ctx, engine, jobs)
}

func runJobsSequential(ctx context.Context, engine *update.Engine, jobs []job) []update.Result {
	results := make([]update.Result, 0, len(jobs))
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		results = append(results, engine.Update(ctx, j.container, j.opts))
		if i < len(jobs)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(update.RollingRestartGap):
			}
		}
	}
	return results
}

func runJobsParallel(ctx context.Context, engine *update.Engine, jobs []job) []update.Result {
	results := make([]update.Result, len(jobs))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = engine.Update(ctx, jobs[i].container, jobs[i].opts)
			}
		}()
	}
	for i := range jobs {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return results
}

func logResult(log *logging.Logger, r update.Result) {
	l := log.WithField("container", r.Container)
	switch {
	case r.Err != nil:
		l.Warn("update failed: %v", r.Err)
	case r.Updated:
		l.Info("updated (%s -> %s)", r.OldDigest, r.NewDigest)
	case r.Skipped:
		l.Debug("skipped: %s", r.SkipReason)
	default:
		l.Debug("no update available")
	}
}

func persistReport(ctx context.Context, history *storage.HistoryStore, report events.SessionReport, log *logging.Logger) {
	resultsJSON, err := storage.MarshalResults(report.Results)
	if err != nil {
		log.Warn("failed to marshal session report results: %v", err)
		return
	}
	rec := storage.Report{
		SessionID:   report.SessionID,
		StartTime:   report.StartTime,
		EndTime:     report.EndTime,
		Status:      string(report.Status),
		Scanned:     report.Scanned,
		WithUpdates: report.WithUpdates,
		Updated:     report.Updated,
		Failed:      report.Failed,
		ResultsJSON: resultsJSON,
	}
	if err := history.Save(ctx, rec); err != nil {
		log.Warn("failed to persist session report: %v", err)
	}
}

// runHealthCheck implements the CLI surface's --health verb: it reads the
// most recent session report from the history store, without starting a new
// tick, and maps its status to an exit code suitable for a container
// healthcheck directive.
func runHealthCheck(cfg config.Config, log *logging.Logger) int {
	if cfg.HistoryFile == "" {
		fmt.Fprintln(os.Stderr, "watchz: --health requires --history-file (or WATCHZ_HISTORY_FILE) to be set")
		return 2
	}

	history, err := storage.Open(cfg.HistoryFile)
	if err != nil {
		log.Error("health check: open history store: %v", err)
		return 1
	}
	defer history.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reports, err := history.Recent(ctx, 1)
	if err != nil {
		log.Error("health check: read history: %v", err)
		return 1
	}
	if len(reports) == 0 {
		fmt.Println("no session report recorded yet")
		return 0
	}

	r := reports[0]
	fmt.Printf("session %s: %s (scanned=%d with_updates=%d updated=%d failed=%d)\n",
		r.SessionID, r.Status, r.Scanned, r.WithUpdates, r.Updated, r.Failed)

	if r.Status == string(events.StatusFailed) {
		return 1
	}
	return 0
}
