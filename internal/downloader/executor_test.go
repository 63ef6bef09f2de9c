package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/platform"
)

type fakeRoute struct {
	downloadFunc func(ctx context.Context, req Request) (*Result, error)
}

func (f *fakeRoute) Download(ctx context.Context, req Request) (*Result, error) {
	return f.downloadFunc(ctx, req)
}

func writtenResult(t *testing.T, dir string, size int) *Result {
	t.Helper()

	path := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("Failed to write fixture file: %v", err)
	}
	return &Result{Path: path, Title: "clip"}
}

func testExecutor(route Downloader, cfg ExecutorConfig) *Executor {
	return NewExecutor(cfg, nil, route, zap.NewNop())
}

func TestExecutor_ConcurrencyBound(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})

	route := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		started <- struct{}{}
		<-release
		return nil, errors.New("done")
	}}

	e := testExecutor(route, ExecutorConfig{Workers: 2, Timeout: time.Minute, MaxSize: 1 << 20})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Download(context.Background(), Request{})
		}()
	}

	// Exactly two jobs reach the route while the permits are held.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("Job %d never started", i+1)
		}
	}
	select {
	case <-started:
		t.Fatal("A third job ran past the two-worker bound")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	wg.Wait()
}

func TestExecutor_Timeout(t *testing.T) {
	route := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	e := testExecutor(route, ExecutorConfig{Workers: 1, Timeout: 20 * time.Millisecond, MaxSize: 1 << 20})

	_, err := e.Download(context.Background(), Request{})
	if !errors.Is(err, ErrTimedOut) {
		t.Errorf("Expected ErrTimedOut, got %v", err)
	}
}

func TestExecutor_ClosedRejectsNewJobs(t *testing.T) {
	route := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		return nil, errors.New("should not run")
	}}

	e := testExecutor(route, ExecutorConfig{Workers: 1, Timeout: time.Minute, MaxSize: 1 << 20})

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := e.Download(context.Background(), Request{})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	// Closing again is a no-op.
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestExecutor_CloseWaitsForRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	route := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		close(started)
		<-release
		return nil, errors.New("done")
	}}

	e := testExecutor(route, ExecutorConfig{Workers: 2, Timeout: time.Minute, MaxSize: 1 << 20})

	go e.Download(context.Background(), Request{})
	<-started

	closed := make(chan error, 1)
	go func() { closed <- e.Close(context.Background()) }()

	select {
	case <-closed:
		t.Fatal("Close returned while a download was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned after the download finished")
	}
}

func TestExecutor_RemovesOversizedFile(t *testing.T) {
	dir := t.TempDir()
	route := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		return writtenResult(t, dir, 100), nil
	}}

	e := testExecutor(route, ExecutorConfig{Workers: 1, Timeout: time.Minute, MaxSize: 10})

	_, err := e.Download(context.Background(), Request{})

	var sizeErr *SizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("Expected SizeError, got %v", err)
	}
	if sizeErr.Size != 100 {
		t.Errorf("Expected reported size 100, got %d", sizeErr.Size)
	}

	if _, err := os.Stat(filepath.Join(dir, "out.mp4")); !os.IsNotExist(err) {
		t.Error("Oversized file should be removed")
	}
}

func TestExecutor_SetsSizeFromDisk(t *testing.T) {
	dir := t.TempDir()
	route := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		return writtenResult(t, dir, 100), nil
	}}

	e := testExecutor(route, ExecutorConfig{Workers: 1, Timeout: time.Minute, MaxSize: 1 << 20})

	res, err := e.Download(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if res.Size != 100 {
		t.Errorf("Expected on-disk size 100, got %d", res.Size)
	}
}

func TestExecutor_RouteSelection(t *testing.T) {
	dir := t.TempDir()

	var tiktokCalls, fallbackCalls int
	tiktokRoute := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		tiktokCalls++
		return writtenResult(t, dir, 10), nil
	}}
	fallback := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		fallbackCalls++
		return writtenResult(t, dir, 10), nil
	}}

	e := NewExecutor(
		ExecutorConfig{Workers: 1, Timeout: time.Minute, MaxSize: 1 << 20},
		map[platform.Platform]Downloader{platform.TikTok: tiktokRoute},
		fallback,
		zap.NewNop(),
	)

	if _, err := e.Download(context.Background(), Request{Link: platform.Link{Platform: platform.TikTok}}); err != nil {
		t.Fatalf("TikTok download failed: %v", err)
	}
	if tiktokCalls != 1 || fallbackCalls != 0 {
		t.Errorf("TikTok request should use its route: tiktok=%d fallback=%d", tiktokCalls, fallbackCalls)
	}

	if _, err := e.Download(context.Background(), Request{Link: platform.Link{Platform: platform.Facebook}}); err != nil {
		t.Fatalf("Facebook download failed: %v", err)
	}
	if fallbackCalls != 1 {
		t.Errorf("Unrouted platform should use the fallback, fallback=%d", fallbackCalls)
	}
}

func TestChain_FallsThrough(t *testing.T) {
	var firstCalls, secondCalls int
	first := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		firstCalls++
		return nil, errors.New("route down")
	}}
	second := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		secondCalls++
		return &Result{Path: "x", Title: "ok"}, nil
	}}

	res, err := Chain{first, second}.Download(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if res.Title != "ok" {
		t.Errorf("Expected the second route's result, got %+v", res)
	}
	if firstCalls != 1 || secondCalls != 1 {
		t.Errorf("Expected both routes tried once: first=%d second=%d", firstCalls, secondCalls)
	}
}

func TestChain_ReturnsLastError(t *testing.T) {
	first := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		return nil, errors.New("first failed")
	}}
	second := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		return nil, errors.New("second failed")
	}}

	_, err := Chain{first, second}.Download(context.Background(), Request{})
	if err == nil || err.Error() != "second failed" {
		t.Errorf("Expected the last route's error, got %v", err)
	}
}

func TestChain_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var secondCalls int
	first := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		cancel()
		return nil, ctx.Err()
	}}
	second := &fakeRoute{downloadFunc: func(ctx context.Context, req Request) (*Result, error) {
		secondCalls++
		return &Result{}, nil
	}}

	_, err := Chain{first, second}.Download(ctx, Request{})
	if err == nil {
		t.Fatal("Expected an error from the canceled chain")
	}
	if secondCalls != 0 {
		t.Error("Chain should not try further routes after cancellation")
	}
}

func TestChain_Empty(t *testing.T) {
	_, err := Chain{}.Download(context.Background(), Request{})
	if err == nil {
		t.Error("Expected an error from an empty chain")
	}
}
