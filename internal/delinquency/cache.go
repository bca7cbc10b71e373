package delinquency

import "github.com/sells-group/delinquency-bot/internal/model"

// LookupCache memoizes verification outcomes by username for a single run.
// It is not safe for concurrent use.
type LookupCache map[string]model.LookupOutcome

// NewLookupCache returns an empty cache sized for n accounts.
func NewLookupCache(n int) LookupCache {
	return make(LookupCache, n)
}

// Get returns the cached outcome for username.
func (c LookupCache) Get(username string) (model.LookupOutcome, bool) {
	o, ok := c[username]
	return o, ok
}

// Put records the outcome for username.
func (c LookupCache) Put(username string, o model.LookupOutcome) {
	c[username] = o
}
