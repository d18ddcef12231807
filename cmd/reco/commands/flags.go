package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// parseDateFlag parses an optional YYYY-MM-DD flag value (empty → zero time)
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := calendar.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, value)
	}
	return d, nil
}

// parseStatuses parses status flags; comma-separated values are split
func parseStatuses(values []string) ([]contracts.Status, error) {
	var out []contracts.Status
	for _, v := range splitList(values) {
		s, ok := contracts.ParseStatus(strings.ToUpper(v))
		if !ok {
			return nil, fmt.Errorf("--status: unknown status %q", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// splitList flattens repeated and comma-separated flag values, dropping blanks
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
