package diagram

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FakeRenderer is a deterministic test double for Renderer: it returns a
// fixed byte payload per call and counts invocations, with no network
// dependency.
type FakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

// NewFakeRenderer returns a renderer that always succeeds with a small
// placeholder payload.
func NewFakeRenderer() *FakeRenderer {
	return &FakeRenderer{}
}

// WithError makes every subsequent Render call fail with err.
func (f *FakeRenderer) WithError(err error) *FakeRenderer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Calls reports how many times Render has been invoked.
func (f *FakeRenderer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Render returns a placeholder payload embedding the requested format and
// source, or the scripted error.
func (f *FakeRenderer) Render(_ context.Context, format, _ string, source string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if source == "" {
		return nil, errors.New("empty diagram source")
	}
	return []byte(fmt.Sprintf("FAKE-%s-RENDER:%s", format, source)), nil
}
