package evidence

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/siteverify/internal/geo"
)

// CodeSeparator delimits list values inside a single CSV cell.
const CodeSeparator = "|"

// SplitCodes splits a pipe-delimited cell, trimming entries and dropping blanks.
func SplitCodes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, CodeSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinCodes renders a list as a pipe-delimited cell.
func JoinCodes(codes []string) string {
	return strings.Join(codes, CodeSeparator)
}

// MergeCodes concatenates lists, dropping duplicates while keeping the first
// occurrence's position.
func MergeCodes(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// ParseBool treats only a case-insensitive "true" as true.
func ParseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// FormatBool renders a bool as lowercase "true"/"false".
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseFloat returns nil for blank, malformed, or non-finite input.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParsePoint returns a point only when both coordinates parse.
func ParsePoint(lat, lng string) *geo.Point {
	return geo.NewPoint(ParseFloat(lat), ParseFloat(lng))
}

// ParseMeters parses a footprint distance. Blank or malformed values map to -1.
func ParseMeters(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f := ParseFloat(s); f != nil {
		return int(math.Round(*f))
	}
	return -1
}
