package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

type opStats struct {
	success     int64
	errors      int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

type recorder struct {
	mu  sync.Mutex
	ops map[string]*opStats
}

func newRecorder() *recorder {
	return &recorder{ops: make(map[string]*opStats)}
}

func (r *recorder) record(op string, took time.Duration, status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.ops[op]
	if !ok {
		s = &opStats{statusCodes: make(map[int]int64)}
		r.ops[op] = s
	}
	if err != nil {
		s.errors++
		return
	}
	if status >= 200 && status < 300 {
		s.success++
	} else {
		s.errors++
	}
	s.latencies = append(s.latencies, took)
	s.statusCodes[status]++
}

// report prints a summary per operation and reports whether any request
// completed at all.
func (r *recorder) report(w io.Writer, duration time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int64
	for _, name := range names {
		s := r.ops[name]
		n := s.success + s.errors
		total += n

		fmt.Fprintf(w, "=== %s ===\n", name)
		fmt.Fprintf(w, "Requests:     %d (%.2f/s)\n", n, float64(n)/duration.Seconds())
		fmt.Fprintf(w, "Errors:       %d (%.2f%%)\n", s.errors, float64(s.errors)/float64(max(n, 1))*100)

		lat := append([]time.Duration(nil), s.latencies...)
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		if len(lat) > 0 {
			fmt.Fprintf(w, "Latency:      min %s  p50 %s  p95 %s  p99 %s  max %s\n",
				lat[0], percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[len(lat)-1])
		}

		codes := make([]int, 0, len(s.statusCodes))
		for code := range s.statusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
		}
		fmt.Fprintln(w)
	}
	return total > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
