// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import "sync"

// Progress is an observable load progress percentage. Reported values
// are monotonically non-decreasing between resets.
type Progress struct {
	mu     sync.Mutex
	val    float64
	notify func(float64)
}

// NewProgress returns a Progress that calls notify with each increase
// in value. Calls to notify are serialised and notify must not call
// methods on the Progress. A nil notify is valid.
func NewProgress(notify func(float64)) *Progress {
	return &Progress{notify: notify}
}

// Reset sets the progress to zero without notification.
func (p *Progress) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.val = 0
	p.mu.Unlock()
}

// Report sets the progress to v if v is greater than the current value,
// notifying the observer. Values are clamped to [0, 100].
func (p *Progress) Report(v float64) {
	if p == nil {
		return
	}
	v = min(max(v, 0), 100)
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= p.val {
		return
	}
	p.val = v
	if p.notify != nil {
		p.notify(v)
	}
}

// Value returns the current progress.
func (p *Progress) Value() float64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.val
}
