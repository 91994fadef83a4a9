// Package clock abstracts time for the coordination registries, so
// deferred cleanups can be driven by a controllable clock in tests
// instead of wall-clock sleeps.
package clock

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run on its own goroutine after d.
	// The returned Task may be stopped before it fires.
	AfterFunc(d time.Duration, fn func()) Task
}

type Task interface {
	// Stop cancels the task, reports whether it was still pending.
	Stop() bool
}

type wall struct{}

type wallTask struct{ t *time.Timer }

// Wall returns the real time clock.
func Wall() Clock { return wall{} }

func (wall) Now() time.Time { return time.Now() }
func (wall) AfterFunc(d time.Duration, fn func()) Task {
	return wallTask{t: time.AfterFunc(d, fn)}
}

func (t wallTask) Stop() bool { return t.t.Stop() }

// Manual is a virtual clock for tests. Time moves only with Advance,
// which runs every task due by the new time in schedule order.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	owner *Manual
	at    time.Time
	seq   int
	fn    func()
	done  bool
}

func NewManual(start time.Time) *Manual { return &Manual{now: start} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{owner: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves the clock forward and fires due tasks, including tasks
// scheduled by the tasks themselves when they are also due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.pop(target)
		if next == nil {
			break
		}
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()
		next.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// pop removes and returns the earliest task due by target, nil if none.
func (m *Manual) pop(target time.Time) *manualTask {
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at.Before(m.tasks[j].at)
	})
	for i, t := range m.tasks {
		if t.done || t.at.After(target) {
			continue
		}
		t.done = true
		m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
		return t
	}
	return nil
}

func (t *manualTask) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, x := range t.owner.tasks {
		if x == t {
			t.owner.tasks = append(t.owner.tasks[:i], t.owner.tasks[i+1:]...)
			break
		}
	}
	return true
}
