package engine

import (
	"regexp"
	"sync"
)

// regexCache memoizes compiled patterns so a ColumnMatchesRegex rule
// evaluated across many rows (or many concurrent goroutines) compiles its
// pattern once. expectation.Compile already validated the pattern before
// the rule reached the engine, so a failed compile here is unreachable in
// practice.
type regexCache struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

var compiledRegexes = &regexCache{cache: make(map[string]*regexp.Regexp)}

func (c *regexCache) get(pattern string) (*regexp.Regexp, bool) {
	c.mu.RLock()
	re, ok := c.cache[pattern]
	c.mu.RUnlock()
	if ok {
		return re, true
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.cache[pattern] = compiled
	c.mu.Unlock()
	return compiled, true
}
