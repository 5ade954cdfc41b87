package mapreduce

import (
	"slices"
	"sync"
	"testing"

	"github.com/dtnitsch/persona-ingest/pkg/analytics"
)

func TestReduce(t *testing.T) {
	got := Reduce(nil, map[string]int{"rope": 2, "crag": 1}, map[string]int{"rope": 1, "belay": 4})
	want := map[string]int{"rope": 3, "crag": 1, "belay": 4}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Reduce()[%q] = %d, want %d", k, got[k], v)
		}
	}

	dst := map[string]int{"rope": 10}
	if out := Reduce(dst, map[string]int{"rope": 1}); out["rope"] != 11 || dst["rope"] != 11 {
		t.Errorf("Reduce() into dst = %v, want rope:11 in place", out)
	}
}

func TestTopKeywords(t *testing.T) {
	counts := map[string]int{"belay": 4, "rope": 3, "crag": 3, "(broken": 9, "key:": 8, "anchor": 1}

	tests := []struct {
		n    int
		want []string
	}{
		{n: 2, want: []string{"belay:4", "crag:3"}},
		{n: 10, want: []string{"belay:4", "crag:3", "rope:3", "anchor:1"}},
		{n: 0, want: []string{}},
	}
	for _, tt := range tests {
		got := TopKeywords(counts, tt.n)
		if !slices.Equal(got, tt.want) {
			t.Errorf("TopKeywords(n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestAccumulator(t *testing.T) {
	a := &analytics.Analytics{}
	acc := NewAccumulator()

	var wg sync.WaitGroup
	for _, doc := range []string{"granite granite slab", "granite crack", "slab"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Add(Map(doc, a))
		}()
	}
	wg.Wait()

	got := acc.Top(2)
	want := []string{"granite:3", "slab:2"}
	if !slices.Equal(got, want) {
		t.Errorf("Top(2) = %v, want %v", got, want)
	}
}
