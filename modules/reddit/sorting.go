package reddit

import (
	"fmt"
	"strings"
)

// Sorting selects a subreddit listing.
type Sorting string

const (
	SortHot    Sorting = "hot"
	SortNew    Sorting = "new"
	SortTop    Sorting = "top"
	SortRising Sorting = "rising"
)

// Sortings lists every listing in display order.
var Sortings = []Sorting{SortHot, SortNew, SortTop, SortRising}

// ParseSorting accepts any case; empty means hot.
func ParseSorting(s string) (Sorting, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SortHot, nil
	}
	for _, candidate := range Sortings {
		if string(candidate) == s {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unknown sorting %q", s)
}

func (s Sorting) String() string { return string(s) }
