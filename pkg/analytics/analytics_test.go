package analytics

import "testing"

func TestWordFrequency(t *testing.T) {
	a := &Analytics{}
	got := a.WordFrequency("The Climber climbs. Climber's rope, the ROPE! 2024 is at a crag; click here. Café café")

	want := map[string]int{
		"climber":   1,
		"climbs":    1,
		"climber's": 1,
		"rope":      2,
		"crag":      1,
		"café":      2,
	}
	if len(got) != len(want) {
		t.Errorf("WordFrequency() = %v, want %v", got, want)
	}
	for w, n := range want {
		if got[w] != n {
			t.Errorf("WordFrequency()[%q] = %d, want %d", w, got[w], n)
		}
	}
}

func TestIsStopword(t *testing.T) {
	for _, w := range []string{"the", "The", "doesn't", "cookie"} {
		if !IsStopword(w) {
			t.Errorf("IsStopword(%q) = false", w)
		}
	}
	if IsStopword("mountain") {
		t.Error(`IsStopword("mountain") = true`)
	}
}
