package orchestrator

import (
	"fmt"
	"strings"
)

// Result is the lifecycle state shared by tasks and conditions. Conditions
// never use Disabled.
type Result int

const (
	Inactive Result = iota
	Running
	Success
	Failure
	Disabled
)

var resultNames = [...]string{"inactive", "running", "success", "failure", "disabled"}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("result(%d)", int(r))
	}
	return resultNames[r]
}

// Terminal reports whether r is Success or Failure.
func (r Result) Terminal() bool {
	return r == Success || r == Failure
}

// ParseResult accepts the lower-case names returned by String.
func ParseResult(s string) (Result, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range resultNames {
		if name == s {
			return Result(i), nil
		}
	}
	return Inactive, fmt.Errorf("unknown state: %q", s)
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Result) UnmarshalText(b []byte) error {
	parsed, err := ParseResult(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
