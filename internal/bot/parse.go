package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRuleNumber extracts a 1-based rule number and checks it against the
// number of loaded rules.
func ParseRuleNumber(args string, total int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("usage: /rule <n>")
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil {
		return 0, fmt.Errorf("invalid rule number %q", s)
	}
	if total == 0 {
		return 0, fmt.Errorf("no rules loaded")
	}
	if n < 1 || n > total {
		return 0, fmt.Errorf("rule number must be between 1 and %d", total)
	}
	return n, nil
}
