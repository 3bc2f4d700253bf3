// Package sizeunit parses K/M/G-suffixed capacity strings from the YAML
// config (spec §6: backend "capacity" accepts size with K/M/G units).
package sizeunit

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse converts a string like "512M", "2G", "1024K" or a bare byte
// count into its value in bytes.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("sizeunit: empty size string")
	}

	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sizeunit: invalid size %q: %w", s, err)
	}
	return n * mult, nil
}
