package pipeline

import (
	"context"
	"sync"
)

// SubmissionGuard suppresses concurrent submissions for the same key.
// Acquire returns acquired=false when another holder owns the key.
type SubmissionGuard interface {
	Acquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// LocalGuard is an in-process SubmissionGuard.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalGuard creates an empty guard
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

// Acquire claims key until release is called.
func (g *LocalGuard) Acquire(ctx context.Context, key string) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held == nil {
		g.held = make(map[string]struct{})
	}
	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}
	return release, true, nil
}

func guardKey(workbookID string) string {
	return "submit:" + workbookID
}

func jobGuardKey(jobID string) string {
	return "job:" + jobID
}
