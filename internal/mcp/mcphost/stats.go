package mcphost

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/mcpagent/internal/mcp"
)

// DefaultStatsWindow is the number of recent calls kept per tool when
// [NewRecorder] is given a non-positive size.
const DefaultStatsWindow = 100

type outcome struct {
	elapsed time.Duration
	err     string // empty on success
}

// toolRing holds the most recent outcomes of one tool.
type toolRing struct {
	buf      []outcome
	next     int
	total    int
	lastCall time.Time
}

func (r *toolRing) add(o outcome, at time.Time) {
	r.buf[r.next] = o
	r.next = (r.next + 1) % len(r.buf)
	r.total++
	r.lastCall = at
}

// window returns the recorded outcomes, oldest first.
func (r *toolRing) window() []outcome {
	if r.total < len(r.buf) {
		return r.buf[:r.total]
	}
	return append(slices.Clone(r.buf[r.next:]), r.buf[:r.next]...)
}

func (r *toolRing) stats(name string) mcp.ToolStats {
	win := r.window()
	st := mcp.ToolStats{Name: name, Calls: r.total, LastCall: r.lastCall}
	if len(win) == 0 {
		return st
	}

	ms := make([]int64, len(win))
	failed := 0
	for i, o := range win {
		ms[i] = o.elapsed.Milliseconds()
		if o.err != "" {
			failed++
			st.LastError = o.err
		}
	}
	slices.Sort(ms)
	st.ErrorRate = float64(failed) / float64(len(win))
	st.P50Ms = nearestRank(ms, 0.50)
	st.P99Ms = nearestRank(ms, 0.99)
	return st
}

// nearestRank picks the p-quantile of sorted, rounding the index down.
func nearestRank(sorted []int64, p float64) int64 {
	return sorted[int(float64(len(sorted)-1)*p)]
}

// Recorder keeps call statistics per tool over a window of recent calls. A
// single Recorder may be shared by many short-lived hosts. Safe for
// concurrent use.
type Recorder struct {
	size int
	now  func() time.Time

	mu    sync.Mutex
	tools map[string]*toolRing
}

// NewRecorder returns a Recorder remembering the last size calls per tool.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultStatsWindow
	}
	return &Recorder{size: size, now: time.Now, tools: make(map[string]*toolRing)}
}

// Record adds one finished call of tool. A non-nil err marks it failed.
func (r *Recorder) Record(tool string, elapsed time.Duration, err error) {
	o := outcome{elapsed: elapsed}
	if err != nil {
		o.err = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ring, ok := r.tools[tool]
	if !ok {
		ring = &toolRing{buf: make([]outcome, r.size)}
		r.tools[tool] = ring
	}
	ring.add(o, r.now())
}

// Snapshot returns the statistics of every tool called so far, sorted by
// name.
func (r *Recorder) Snapshot() []mcp.ToolStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mcp.ToolStats, 0, len(r.tools))
	for name, ring := range r.tools {
		out = append(out, ring.stats(name))
	}
	slices.SortFunc(out, func(a, b mcp.ToolStats) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
