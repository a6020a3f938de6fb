package normalizer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks input that cannot be normalized at all.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError lists records that cannot be placed in time order.
type ValidationError struct {
	Indexes []int
	Reason  string
}

func (e *ValidationError) Error() string {
	idx := make([]string, 0, len(e.Indexes))
	for i, n := range e.Indexes {
		if i == 10 {
			idx = append(idx, fmt.Sprintf("... (%d more)", len(e.Indexes)-10))
			break
		}
		idx = append(idx, fmt.Sprint(n))
	}
	return fmt.Sprintf("%s: %s at records [%s]", ErrInvalidInput, e.Reason, strings.Join(idx, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
