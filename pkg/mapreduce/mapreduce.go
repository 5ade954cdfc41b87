package mapreduce

import (
	"sync"

	"github.com/dtnitsch/persona-ingest/pkg/analytics"
)

// Map generates a word frequency map for a single document's content.
func Map(content string, a *analytics.Analytics) map[string]int {
	return a.WordFrequency(content)
}

// Reduce adds word frequency maps into dst and returns it. A nil dst starts
// a new map.
func Reduce(dst map[string]int, intermediate ...map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int)
	}

	for _, counts := range intermediate {
		for word, count := range counts {
			dst[word] += count
		}
	}

	return dst
}

// Accumulator reduces per-page frequencies as pages arrive over a job.
type Accumulator struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{counts: make(map[string]int)}
}

func (acc *Accumulator) Add(counts map[string]int) {
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.counts = Reduce(acc.counts, counts)
}

// Top returns the n most frequent words so far as "word:count".
func (acc *Accumulator) Top(n int) []string {
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return TopKeywords(acc.counts, n)
}
