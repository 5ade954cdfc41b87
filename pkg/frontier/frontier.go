// Package frontier tracks which pages a crawl job has seen and which it will
// visit next. A State belongs to exactly one job.
package frontier

// State is a FIFO queue of URLs with visited/queued dedup and a page budget.
type State struct {
	visited  map[string]struct{}
	queued   map[string]struct{}
	queue    []string
	budget   int
	dequeued int
}

// New seeds a frontier. A budget of zero or less means unlimited.
func New(seed string, budget int) *State {
	s := &State{
		visited: make(map[string]struct{}),
		queued:  make(map[string]struct{}),
		budget:  budget,
	}
	s.Enqueue(seed)
	return s
}

// Enqueue adds URLs not yet visited or queued and returns how many were added.
func (s *State) Enqueue(urls ...string) int {
	added := 0
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := s.visited[u]; ok {
			continue
		}
		if _, ok := s.queued[u]; ok {
			continue
		}
		s.queued[u] = struct{}{}
		s.queue = append(s.queue, u)
		added++
	}
	return added
}

// Next pops the next URL and marks it visited. It reports false when the
// queue is empty or the budget is spent.
func (s *State) Next() (string, bool) {
	if s.BudgetSpent() || len(s.queue) == 0 {
		return "", false
	}
	u := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	delete(s.queued, u)
	s.visited[u] = struct{}{}
	s.dequeued++
	return u, true
}

// MarkVisited records u as fetched without spending budget, dropping it from
// the queue if it was pending. Used for redirect targets.
func (s *State) MarkVisited(u string) {
	if u == "" {
		return
	}
	s.visited[u] = struct{}{}
	if _, ok := s.queued[u]; !ok {
		return
	}
	delete(s.queued, u)
	kept := s.queue[:0]
	for _, q := range s.queue {
		if q != u {
			kept = append(kept, q)
		}
	}
	s.queue = kept
}

func (s *State) BudgetSpent() bool {
	return s.budget > 0 && s.dequeued >= s.budget
}

// Visited reports whether u has been dequeued.
func (s *State) Visited(u string) bool {
	_, ok := s.visited[u]
	return ok
}

func (s *State) Pending() int {
	return len(s.queue)
}

// Dequeued counts pages handed out by Next.
func (s *State) Dequeued() int {
	return s.dequeued
}

// URLSet is an insertion-ordered set, used for the images a job discovers.
type URLSet struct {
	seen  map[string]struct{}
	items []string
}

func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add inserts URLs and returns how many were new.
func (u *URLSet) Add(urls ...string) int {
	added := 0
	for _, v := range urls {
		if _, ok := u.seen[v]; ok || v == "" {
			continue
		}
		u.seen[v] = struct{}{}
		u.items = append(u.items, v)
		added++
	}
	return added
}

func (u *URLSet) Len() int {
	return len(u.items)
}

// Items returns the URLs in insertion order.
func (u *URLSet) Items() []string {
	return append([]string(nil), u.items...)
}
