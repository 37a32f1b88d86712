package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyontex/tachyon-tex/internal/bundle"
	"github.com/tachyontex/tachyon-tex/internal/cache"
	"github.com/tachyontex/tachyon-tex/internal/engine"
	"github.com/tachyontex/tachyon-tex/internal/project"
	"github.com/tachyontex/tachyon-tex/internal/vfs"
)

type fakeEngine struct {
	calls int32
	delay time.Duration
	err   error
}

func (f *fakeEngine) Run(ctx context.Context, v *vfs.FS, in engine.Input) (engine.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return engine.Result{}, f.err
	}
	v.CreateWrite(vfs.OutputPDFName, []byte("%PDF-fake-output"))
	return engine.Result{}, nil
}

func newTestOrchestrator(eng engine.Engine) *Orchestrator {
	pdfCache := cache.New[uint64](true, 1<<20, time.Hour)
	formatCache := cache.New[uint64](true, 1<<20, time.Hour)
	b := &bundle.Bundle{}
	return New(pdfCache, formatCache, b, eng, nil, nil, nil, Config{
		CompileTimeout:     time.Second,
		BlockingPoolSize:   4,
		BackpressureFactor: 2,
	})
}

func helloProject() *project.Project {
	p := project.New()
	p.Files["hello.tex"] = project.Text([]byte(`\documentclass{article}\begin{document}Hi\end{document}`))
	return p
}

func TestCompileMissThenHit(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng)
	p := helloProject()

	first, err := o.Compile(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, "MISS", first.CacheStatus)
	assert.Equal(t, StateCompleted, first.FinalState)

	second, err := o.Compile(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, "HIT", second.CacheStatus)
	assert.Equal(t, int64(0), second.CompileMs)
	assert.Equal(t, first.PDF, second.PDF)

	assert.Equal(t, int32(1), atomic.LoadInt32(&eng.calls))
}

func TestCompileNoRootFoundFails(t *testing.T) {
	o := newTestOrchestrator(&fakeEngine{})
	p := project.New()
	p.Files["notes.txt"] = project.Text([]byte("no marker here"))

	_, err := o.Compile(context.Background(), p, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, project.ErrNoRootFound)
}

func TestCompilePropagatesEngineError(t *testing.T) {
	eng := &fakeEngine{err: errors.New("boom")}
	o := newTestOrchestrator(eng)

	_, err := o.Compile(context.Background(), helloProject(), nil)
	require.Error(t, err)
}

func TestCompileTimesOut(t *testing.T) {
	eng := &fakeEngine{delay: 100 * time.Millisecond}
	o := newTestOrchestrator(eng)
	o.cfg.CompileTimeout = 10 * time.Millisecond

	outcome, err := o.Compile(context.Background(), helloProject(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, project.ErrTimedOut)
	assert.Equal(t, StateTimedOut, outcome.FinalState)
}

type stubResolver map[uint64][]byte

func (s stubResolver) Get(hash uint64) ([]byte, bool) {
	b, ok := s[hash]
	return b, ok
}

func TestCompileFailsWhenResolvedHashRefExceedsCap(t *testing.T) {
	eng := &fakeEngine{}
	pdfCache := cache.New[uint64](true, 1<<20, time.Hour)
	formatCache := cache.New[uint64](true, 1<<20, time.Hour)
	b := &bundle.Bundle{}
	o := New(pdfCache, formatCache, b, eng, nil, nil, nil, Config{
		CompileTimeout:     time.Second,
		BlockingPoolSize:   4,
		BackpressureFactor: 2,
		MaxProjectBytes:    100,
	})

	p := project.New()
	p.Files["paper.tex"] = project.Text([]byte(`\documentclass{article}\begin{document}\input{big}\end{document}`))
	p.Files["big.tex"] = project.HashRef(42)

	resolver := stubResolver{42: bytes.Repeat([]byte("x"), 64)}

	_, err := o.Compile(context.Background(), p, resolver)
	require.Error(t, err)
	assert.ErrorIs(t, err, project.ErrProjectTooLarge)
}

func TestCompileCoalescesConcurrentIdenticalRequests(t *testing.T) {
	eng := &fakeEngine{delay: 50 * time.Millisecond}
	o := newTestOrchestrator(eng)
	p := helloProject()

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	pdfs := make([][]byte, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			outcome, err := o.Compile(context.Background(), p, nil)
			require.NoError(t, err)
			pdfs[i] = outcome.PDF
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&eng.calls))
	for _, pdf := range pdfs {
		assert.Equal(t, pdfs[0], pdf)
	}
}

func TestCompileReordersFilesSameFingerprint(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng)

	p1 := project.New()
	p1.Files["helper.tex"] = project.Text([]byte(`\newcommand{\g}{G}`))
	p1.Files["paper.tex"] = project.Text([]byte(`\documentclass{article}\begin{document}\g\end{document}`))

	p2 := project.New()
	p2.Files["paper.tex"] = p1.Files["paper.tex"]
	p2.Files["helper.tex"] = p1.Files["helper.tex"]

	first, err := o.Compile(context.Background(), p1, nil)
	require.NoError(t, err)
	second, err := o.Compile(context.Background(), p2, nil)
	require.NoError(t, err)

	assert.Equal(t, "MISS", first.CacheStatus)
	assert.Equal(t, "HIT", second.CacheStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&eng.calls))
}
