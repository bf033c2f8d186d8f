package types

// Priority orders messages within a queue. Lower rank dispatches first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns the dispatch rank of the priority. Unknown priorities rank
// after low so malformed input never jumps the queue.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Valid reports whether p is one of the four known priority classes.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}
