// Package service provides the lifecycle shared by every view: mounted
// tracking, a loading flag, the last error and a guard that drops results
// which arrive after the view went away.
package service

import (
	"sync"
	"time"
)

// Base is embedded by views. Every load follows the same shape:
//
//	gen := v.Begin()
//	data, err := fetch(ctx)          // no view lock held
//	if !v.Finish(gen, err) { return } // view unmounted or reset meanwhile
//	apply(data)
//
// Finish reports whether the result may still be applied.
type Base struct {
	name string

	mu         sync.RWMutex
	mounted    bool
	generation uint64
	inflight   int
	err        error
	lastLoaded time.Time
	now        func() time.Time
}

// NewBase creates a mounted Base.
func NewBase(name string) *Base {
	return &Base{name: name, mounted: true, now: time.Now}
}

func (b *Base) Name() string { return b.name }

// Mount marks the view visible again. Work begun before the previous
// Unmount stays discarded.
func (b *Base) Mount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mounted {
		return
	}
	b.mounted = true
	b.generation++
}

// Unmount marks the view gone. In-flight results will be dropped.
func (b *Base) Unmount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mounted = false
	b.generation++
	b.inflight = 0
}

// ResetState invalidates in-flight work and clears the error, keeping the
// mounted flag. Views call it from their own Reset.
func (b *Base) ResetState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.inflight = 0
	b.err = nil
	b.lastLoaded = time.Time{}
}

func (b *Base) Mounted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mounted
}

// Begin starts a request and returns the generation to pass to Finish.
func (b *Base) Begin() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight++
	return b.generation
}

// Finish ends a request started by Begin. It returns false, leaving all
// state alone, when the view was unmounted or reset in between. Otherwise
// the error (nil clears it) becomes the view's current error.
func (b *Base) Finish(gen uint64, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation || !b.mounted {
		return false
	}
	if b.inflight > 0 {
		b.inflight--
	}
	b.err = err
	if err == nil {
		b.lastLoaded = b.now()
	}
	return true
}

// Done ends a request like Finish but leaves the current error alone.
// Used for follow-up reloads whose failure is only logged.
func (b *Base) Done(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation || !b.mounted {
		return false
	}
	if b.inflight > 0 {
		b.inflight--
	}
	return true
}

// Current reports whether gen is still the live generation of a mounted view.
func (b *Base) Current(gen uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return gen == b.generation && b.mounted
}

// SetErr records an error that did not come from a Begin/Finish pair,
// such as a validation failure.
func (b *Base) SetErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *Base) Loading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inflight > 0
}

func (b *Base) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Status is the JSON view of a Base.
type Status struct {
	Name       string     `json:"name"`
	Mounted    bool       `json:"mounted"`
	Loading    bool       `json:"loading"`
	Error      string     `json:"error,omitempty"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
}

func (b *Base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Status{Name: b.name, Mounted: b.mounted, Loading: b.inflight > 0}
	if b.err != nil {
		s.Error = b.err.Error()
	}
	if !b.lastLoaded.IsZero() {
		t := b.lastLoaded
		s.LastLoaded = &t
	}
	return s
}
