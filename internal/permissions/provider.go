package permissions

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"agenticdebugger/internal/automation"

	"github.com/fsnotify/fsnotify"
)

// Provider caches the current policy. Request goroutines only ever read the
// cached pointer; the settings source is queried from the automation thread.
type Provider struct {
	source Source
	thread *automation.Thread

	current   atomic.Pointer[Policy]
	refreshes atomic.Int64
	failures  atomic.Int64
}

// NewProvider seeds the cache with initial until the first Refresh succeeds
func NewProvider(source Source, thread *automation.Thread, initial Policy) *Provider {
	p := &Provider{source: source, thread: thread}
	p.current.Store(&initial)
	return p
}

// Current returns the cached policy
func (p *Provider) Current() Policy {
	return *p.current.Load()
}

// Refresh pulls the policy from the source on the automation thread. On
// failure the previous policy stays in effect.
func (p *Provider) Refresh(ctx context.Context) error {
	next, err := automation.Call(ctx, p.thread, func(ctx context.Context) (Policy, error) {
		return p.source.Load()
	})
	if err != nil {
		p.failures.Add(1)
		log.Printf("⚠️  [PERMISSIONS] Refresh failed, keeping previous policy: %v", err)
		return fmt.Errorf("refresh permissions: %w", err)
	}

	prev := p.current.Swap(&next)
	p.refreshes.Add(1)
	if prev == nil || *prev != next {
		log.Printf("🔐 [PERMISSIONS] Policy updated: %s", describe(next))
	}
	return nil
}

// Stats returns successful and failed refresh counts
func (p *Provider) Stats() (refreshes, failures int64) {
	return p.refreshes.Load(), p.failures.Load()
}

func describe(pol Policy) string {
	out := ""
	for _, c := range AllCapabilities() {
		mark := "-"
		if pol.Allows(c) {
			mark = "+"
		}
		out += mark + string(c) + " "
	}
	return out
}

// Watch refreshes the policy shortly after the settings file changes, until
// ctx is cancelled. The timer refresh keeps running regardless.
func (p *Provider) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	// editors replace files on save, so watch the directory
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Printf("👁️  [PERMISSIONS] Watching %s for changes", absPath)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
					defer cancel()
					_ = p.Refresh(refreshCtx)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  [PERMISSIONS] Watcher error: %v", err)
			}
		}
	}()
	return nil
}
