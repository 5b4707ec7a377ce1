package engine

import "fmt"

// dispatchLedger charges dispatches to chains and refuses a dispatch once
// a chain has used its allowance. A chain is every invocation of one
// construct under one concurrency key; an uncapped cycle whose predicate
// never holds would otherwise re-dispatch forever.
type dispatchLedger struct {
	limit int
	used  map[string]int
}

func newDispatchLedger(limit int) *dispatchLedger {
	return &dispatchLedger{limit: limit, used: make(map[string]int)}
}

// charge records one dispatch for chain. The dispatch that would take the
// chain past the limit is refused with a *QuotaExceededError and still
// counted, so the error reports how far the chain got.
func (l *dispatchLedger) charge(chain string) error {
	l.used[chain]++
	if n := l.used[chain]; n > l.limit {
		return &QuotaExceededError{Chain: chain, Dispatches: n, Limit: l.limit}
	}
	return nil
}

// usedBy returns the dispatches charged to chain so far.
func (l *dispatchLedger) usedBy(chain string) int {
	return l.used[chain]
}

// chainID names the chain of a construct and key, e.g. "review/refine@pr-7".
func chainID(c Construct, key string) string {
	return c.id() + "@" + key
}

// QuotaExceededError is the cause of a QUOTA_EXCEEDED runtime error.
type QuotaExceededError struct {
	Chain      string
	Dispatches int
	Limit      int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("chain %s exceeded dispatch quota: %d dispatches > %d limit",
		e.Chain, e.Dispatches, e.Limit)
}
