// Package orchestrator implements the compile state machine (C10):
// Received -> Parsed -> Fingerprinted -> (ServeFromPdfCache | BuildRequested)
// -> EngineRunning -> Completed | Failed | TimedOut | Cancelled. It composes
// the Root Detector, Fingerprint, PDF Cache, Format Cache, VFS, and Engine
// collaborators, and triggers the Event Fan-out on completion.
//
// Generalizes an ad-hoc goroutine-plus-status-field compile-job model into
// an explicit state machine with single-flight coalescing via the shared
// internal/cache package.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tachyontex/tachyon-tex/internal/bundle"
	"github.com/tachyontex/tachyon-tex/internal/cache"
	"github.com/tachyontex/tachyon-tex/internal/engine"
	"github.com/tachyontex/tachyon-tex/internal/fingerprint"
	"github.com/tachyontex/tachyon-tex/internal/project"
	"github.com/tachyontex/tachyon-tex/internal/rootdetect"
	"github.com/tachyontex/tachyon-tex/internal/vfs"
	"github.com/tachyontex/tachyon-tex/internal/webhook"
	"github.com/tachyontex/tachyon-tex/pkg/logger"
)

// State names the orchestrator's state machine positions.
type State string

const (
	StateReceived        State = "received"
	StateParsed          State = "parsed"
	StateFingerprinted   State = "fingerprinted"
	StateServeFromCache  State = "serve_from_pdf_cache"
	StateBuildRequested  State = "build_requested"
	StateEngineRunning   State = "engine_running"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	StateTimedOut        State = "timed_out"
	StateCancelled       State = "cancelled"
)

// CompileOutcome is the result of one full pipeline run.
type CompileOutcome struct {
	PDF                []byte
	CacheStatus        string // "HIT" or "MISS"
	CompileMs          int64
	OriginalCompileMs  int64
	PreambleHash       uint64
	PreambleConsulted  bool
	PreambleHit        bool
	FilesReceived      int
	FinalState         State
}

// MetricsSink receives orchestrator outcomes for the ambient Prometheus
// collectors in pkg/metrics; kept as a narrow interface so this package
// does not need to import pkg/metrics directly.
type MetricsSink interface {
	ObserveCompile(cacheHit bool, durationMs int64, err error)
}

// AuditRecord is a durable, non-authoritative record of one compile
// outcome. Kept as this package's own type, rather than importing
// internal/compile's AuditRecord directly, for the same reason MetricsSink
// is narrow: the orchestrator's correctness never depends on the sink.
type AuditRecord struct {
	Fingerprint  string
	CacheStatus  string
	CompileMs    int64
	Success      bool
	ErrorMessage string
}

// AuditSink persists AuditRecords. Record must not block the caller for
// long; a nil AuditSink disables audit recording entirely.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord)
}

// Config bounds an Orchestrator's behavior, mapped from environment
// variables read at startup.
type Config struct {
	CompileTimeout     time.Duration
	BlockingPoolSize   int
	BackpressureFactor int   // high-water mark = BlockingPoolSize * BackpressureFactor
	MaxProjectBytes    int64 // enforced against resolved HashRef content too
}

// Orchestrator wires together every collaborator needed to run the compile
// pipeline for one request or streaming-session message.
type Orchestrator struct {
	pdfCache    *cache.Cache[uint64]
	formatCache *cache.Cache[uint64]
	bundle      *bundle.Bundle
	engine      engine.Engine
	dispatcher  *webhook.Dispatcher
	metrics     MetricsSink
	audit       AuditSink
	cfg         Config
	sem         chan struct{}
}

// New builds an Orchestrator. dispatcher, metrics, and audit may all be
// nil; a nil dispatcher disables webhook fan-out, a nil metrics sink
// disables per-compile observation, and a nil audit sink disables audit
// recording.
func New(pdfCache, formatCache *cache.Cache[uint64], b *bundle.Bundle, eng engine.Engine, dispatcher *webhook.Dispatcher, metrics MetricsSink, audit AuditSink, cfg Config) *Orchestrator {
	highWater := cfg.BlockingPoolSize * cfg.BackpressureFactor
	if highWater <= 0 {
		highWater = cfg.BlockingPoolSize * 2
	}
	if highWater <= 0 {
		highWater = 8
	}
	return &Orchestrator{
		pdfCache:    pdfCache,
		formatCache: formatCache,
		bundle:      b,
		engine:      eng,
		dispatcher:  dispatcher,
		metrics:     metrics,
		audit:       audit,
		cfg:         cfg,
		sem:         make(chan struct{}, highWater),
	}
}

// Compile runs the full pipeline for p and returns a CompileOutcome or an
// error classified by one of project's sentinel error kinds. resolver
// resolves HashRef file contents against a session's BlobStore; pass nil
// outside a streaming session.
//
// The engine invocation lives inside pdfCache.Resolve's BuildFunc, so N
// concurrent requests that fingerprint identically coalesce onto a single
// engine run: only the singleflight leader materializes the project and
// calls o.engine.Run, and every caller — leader and followers alike —
// receives the same Entry or the same error.
func (o *Orchestrator) Compile(ctx context.Context, p *project.Project, resolver fingerprint.Resolver) (CompileOutcome, error) {
	rootName, err := rootdetect.Resolve(p)
	if err != nil {
		return CompileOutcome{FinalState: StateFailed}, err
	}

	fp, err := fingerprint.Of(p, resolver)
	if err != nil {
		return CompileOutcome{FinalState: StateFailed}, err
	}

	rootFC := p.Files[rootName]
	preambleHash, hasPreamble := fingerprintPreamble(rootFC.Bytes)
	var formatProbe cache.Result
	if hasPreamble {
		formatProbe = o.formatCache.Probe(preambleHash)
	}

	// elapsedMs records the leader's build duration even on failure, since
	// cache.Resolve discards the built Entry when the BuildFunc errors.
	var elapsedMs int64

	build := func() (cache.Entry, error) {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		default:
			return cache.Entry{}, project.Wrap(project.ErrOverloaded, "blocking pool queue exceeded high-water mark")
		}

		files, err := materialize(p, resolver, o.cfg.MaxProjectBytes)
		if err != nil {
			return cache.Entry{}, err
		}
		for name, data := range o.bundle.Files() {
			if _, exists := files[name]; !exists {
				files["bundle/"+name] = data
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, o.cfg.CompileTimeout)
		defer cancel()

		start := time.Now()
		v := vfs.New(files)
		engineIn := engine.Input{RootName: rootName, Preamble: string(rootFC.Bytes)}
		if formatProbe.Hit {
			engineIn.FormatDump = formatProbe.Entry.Bytes
		}

		result, buildErr := o.engine.Run(timeoutCtx, v, engineIn)
		elapsedMs = time.Since(start).Milliseconds()

		if timeoutCtx.Err() == context.DeadlineExceeded {
			return cache.Entry{OriginalMillis: elapsedMs}, project.Wrap(project.ErrTimedOut, "compile exceeded %s", o.cfg.CompileTimeout)
		}
		if ctx.Err() == context.Canceled {
			return cache.Entry{OriginalMillis: elapsedMs}, project.Wrap(project.ErrCancelled, "client disconnected")
		}
		if buildErr != nil {
			return cache.Entry{OriginalMillis: elapsedMs}, buildErr
		}

		if hasPreamble && !formatProbe.Hit && result.FormatDump != nil {
			dump := result.FormatDump
			o.formatCache.Resolve(preambleHash, strconv.FormatUint(preambleHash, 16), func() (cache.Entry, error) {
				return cache.Entry{Bytes: dump}, nil
			})
		}

		pdf, err := v.OutputPDF()
		if err != nil {
			return cache.Entry{OriginalMillis: elapsedMs}, project.Wrap(project.ErrEngineError, "%s", err)
		}
		return cache.Entry{Bytes: pdf, OriginalMillis: elapsedMs}, nil
	}

	entry, hit, buildErr := o.pdfCache.Resolve(fp, strconv.FormatUint(fp, 16), build)

	if buildErr != nil {
		switch {
		case errors.Is(buildErr, project.ErrTimedOut):
			o.observe(false, elapsedMs, buildErr)
			o.recordAudit(AuditRecord{Fingerprint: strconv.FormatUint(fp, 16), CacheStatus: "MISS", CompileMs: elapsedMs, ErrorMessage: buildErr.Error()})
			return CompileOutcome{FinalState: StateTimedOut}, buildErr
		case errors.Is(buildErr, project.ErrCancelled):
			return CompileOutcome{FinalState: StateCancelled}, buildErr
		default:
			o.observe(false, elapsedMs, buildErr)
			o.emitAsync(webhook.Event{
				Type:        webhook.EventCompileError,
				Fingerprint: strconv.FormatUint(fp, 16),
				CompileMs:   elapsedMs,
				Error:       buildErr.Error(),
			})
			o.recordAudit(AuditRecord{Fingerprint: strconv.FormatUint(fp, 16), CacheStatus: "MISS", CompileMs: elapsedMs, ErrorMessage: buildErr.Error()})
			return CompileOutcome{FinalState: StateFailed}, buildErr
		}
	}

	if hit {
		o.observe(true, 0, nil)
		o.emitAsync(webhook.Event{
			Type:              webhook.EventCompileSuccess,
			Fingerprint:       strconv.FormatUint(fp, 16),
			CompileMs:         0,
			OriginalCompileMs: entry.OriginalMillis,
		})
		o.recordAudit(AuditRecord{Fingerprint: strconv.FormatUint(fp, 16), CacheStatus: "HIT", CompileMs: entry.OriginalMillis, Success: true})
		return CompileOutcome{
			PDF:               entry.Bytes,
			CacheStatus:       "HIT",
			CompileMs:         0,
			OriginalCompileMs: entry.OriginalMillis,
			FilesReceived:     len(p.Files),
			FinalState:        StateCompleted,
		}, nil
	}

	o.observe(false, entry.OriginalMillis, nil)
	o.emitAsync(webhook.Event{
		Type:        webhook.EventCompileSuccess,
		Fingerprint: strconv.FormatUint(fp, 16),
		CompileMs:   entry.OriginalMillis,
	})
	o.recordAudit(AuditRecord{Fingerprint: strconv.FormatUint(fp, 16), CacheStatus: "MISS", CompileMs: entry.OriginalMillis, Success: true})

	logger.Debugf("orchestrator: compiled fingerprint=%x state=%s elapsed_ms=%d", fp, StateCompleted, entry.OriginalMillis)

	return CompileOutcome{
		PDF:               entry.Bytes,
		CacheStatus:       "MISS",
		CompileMs:         entry.OriginalMillis,
		PreambleHash:      preambleHash,
		PreambleConsulted: hasPreamble,
		PreambleHit:       formatProbe.Hit,
		FilesReceived:     len(p.Files),
		FinalState:        StateCompleted,
	}, nil
}

func (o *Orchestrator) observe(hit bool, ms int64, err error) {
	if o.metrics != nil {
		o.metrics.ObserveCompile(hit, ms, err)
	}
}

// emitAsync dispatches a webhook event detached from the caller's request
// context: webhook delivery must never block or fail the originating
// compile response.
func (o *Orchestrator) emitAsync(event webhook.Event) {
	if o.dispatcher == nil {
		return
	}
	go o.dispatcher.Dispatch(context.Background(), event)
}

// recordAudit hands rec to the audit sink detached from the caller's
// request context, matching emitAsync: audit persistence is purely
// observational and must never slow down or fail a compile response.
func (o *Orchestrator) recordAudit(rec AuditRecord) {
	if o.audit == nil {
		return
	}
	go o.audit.Record(context.Background(), rec)
}

func fingerprintPreamble(rootBytes []byte) (uint64, bool) {
	return fingerprint.Preamble(rootBytes)
}

// materialize resolves every file in p to raw bytes, following HashRef
// entries through resolver. Fails with project.ErrUnresolvedBlob if a
// reference cannot be resolved, and with project.ErrProjectTooLarge if the
// resolved total (including HashRef bytes, unknown until resolution) exceeds
// maxBytes. The cap is checked here, at resolution time, rather than
// rejecting HashRef entries up front, since a HashRef's size is only known
// once the resolver returns its bytes.
func materialize(p *project.Project, resolver fingerprint.Resolver, maxBytes int64) (map[string][]byte, error) {
	out := make(map[string][]byte, len(p.Files))
	var total int64
	for name, fc := range p.Files {
		switch fc.Kind {
		case project.KindHashRef:
			if resolver == nil {
				return nil, project.Wrap(project.ErrUnresolvedBlob, "no resolver for %s", name)
			}
			data, ok := resolver.Get(fc.Hash)
			if !ok {
				return nil, project.Wrap(project.ErrUnresolvedBlob, "hash ref for %s not found", name)
			}
			out[name] = data
			total += int64(len(data))
		default:
			out[name] = fc.Bytes
			total += int64(len(fc.Bytes))
		}
		if maxBytes > 0 && total > maxBytes {
			return nil, project.Wrap(project.ErrProjectTooLarge, "resolved project size exceeds cap")
		}
	}
	return out, nil
}
