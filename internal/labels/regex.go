package labels

import (
	"regexp"
	"sync"
)

// regexCache memoizes compiled anchored patterns: a regex matcher is
// evaluated once per candidate series, and the pattern rarely changes
// within a query, so recompiling per call would be wasteful.
var regexCache sync.Map // string -> *regexp.Regexp

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// regexMatch reports whether value matches pattern anchored at both ends.
// An invalid pattern never matches, rather than panicking the evaluator.
func regexMatch(pattern, value string) bool {
	re, err := compileAnchored(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
