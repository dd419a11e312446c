// Package util holds small shared helpers.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a memory size string such as "2G", "512MiB", "1500M",
// or a plain byte count, returning bytes. Decimal suffixes (K/M/G/T) are
// powers of 1000; binary suffixes (Ki/Mi/Gi/Ti) are powers of 1024. A
// trailing "B" is accepted on either form.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	num := s
	mult := int64(1)
	upper := strings.ToUpper(s)
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30}, {"TIB", 1 << 40},
		{"KI", 1 << 10}, {"MI", 1 << 20}, {"GI", 1 << 30}, {"TI", 1 << 40},
		{"KB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"TB", 1e12},
		{"K", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
		{"B", 1},
	}
	for _, sf := range suffixes {
		if strings.HasSuffix(upper, sf.suffix) {
			num = strings.TrimSpace(s[:len(s)-len(sf.suffix)])
			mult = sf.mult
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return int64(f * float64(mult)), nil
}

// FormatSize renders a byte count with a binary suffix for human output.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<40:
		return fmt.Sprintf("%.1fTiB", float64(n)/(1<<40))
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// Truncate shortens s to at most n runes, appending an ellipsis when
// anything was cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
