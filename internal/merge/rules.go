package merge

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMagicMethods are dunder names never worth merging.
var DefaultMagicMethods = []string{
	"__init__", "__new__", "__del__", "__call__", "__str__", "__repr__",
	"__len__", "__getitem__", "__setitem__", "__delitem__", "__iter__",
	"__next__", "__contains__", "__add__", "__sub__", "__mul__", "__div__",
	"__truediv__", "__floordiv__", "__mod__", "__pow__", "__and__", "__or__",
	"__xor__", "__lshift__", "__rshift__", "__neg__", "__pos__", "__abs__",
	"__invert__", "__lt__", "__le__", "__eq__", "__ne__", "__gt__", "__ge__",
	"__hash__", "__bool__", "__getattr__", "__setattr__", "__delattr__",
	"__enter__", "__exit__", "__with__", "__await__", "__aiter__", "__anext__",
}

// DefaultGenericTerms are names too common to identify anything.
var DefaultGenericTerms = []string{
	"data", "result", "value", "item", "element", "object", "instance",
	"index", "key", "name", "text", "string", "number", "count", "size",
	"length", "width", "height", "temp", "tmp", "test", "example",
	"sample", "demo", "main", "app", "init", "config", "util", "helper",
	"manager", "handler", "controller", "service",
}

// DefaultTestRelated are placeholder names from tests and examples.
var DefaultTestRelated = []string{
	"foo", "bar", "baz", "qux", "spam", "eggs", "hello", "world",
	"mock", "stub", "fake", "dummy",
}

// Rules decides which entity names take part in merging.
type Rules struct {
	MagicMethods   []string
	GenericTerms   []string
	TestRelated    []string
	CustomPatterns []string // exact names or glob patterns with * and ?
	ExcludePrivate bool
	MinNameLength  int
	MaxNameLength  int
}

// DefaultRules returns the built-in exclusion rules.
func DefaultRules() Rules {
	return Rules{
		MagicMethods:   DefaultMagicMethods,
		GenericTerms:   DefaultGenericTerms,
		TestRelated:    DefaultTestRelated,
		ExcludePrivate: true,
		MinNameLength:  2,
		MaxNameLength:  50,
	}
}

var (
	numericRe = regexp.MustCompile(`^\p{Nd}+$`)
	urlRe     = regexp.MustCompile(`^https?://`)
	pathRe    = regexp.MustCompile(`^[/\\]`)
	symbolRe  = regexp.MustCompile(`^[^\p{L}\p{N}_\s]+$`)
)

// ShouldExclude reports whether name is kept out of merging. Matching is
// case-insensitive; the length bounds apply to the whole name, the remaining
// checks to the part after a "file:" prefix.
func (r Rules) ShouldExclude(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))

	l := utf8.RuneCountInString(n)
	if l > r.MaxNameLength || l < r.MinNameLength {
		return true
	}

	actual := n
	if _, after, ok := strings.Cut(n, ":"); ok {
		actual = strings.TrimSpace(after)
	}

	for _, p := range r.CustomPatterns {
		p = strings.ToLower(p)
		if strings.ContainsAny(p, "*?") {
			if ok, err := path.Match(p, actual); err == nil && ok {
				return true
			}
		} else if actual == p {
			return true
		}
	}

	for _, list := range [][]string{r.MagicMethods, r.GenericTerms, r.TestRelated} {
		if containsFold(list, actual) {
			return true
		}
	}

	if r.ExcludePrivate && strings.HasPrefix(actual, "_") {
		return true
	}
	return numericRe.MatchString(actual) ||
		urlRe.MatchString(actual) ||
		pathRe.MatchString(actual) ||
		symbolRe.MatchString(actual)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.ToLower(v) == s {
			return true
		}
	}
	return false
}
