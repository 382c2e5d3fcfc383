package tenun

import (
	"fmt"
	"strings"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// UnknownTypeError is returned by the Catalog when a requested component
// type has no registered constructor. Available lists the names that are
// registered for the category.
type UnknownTypeError struct {
	Category  string
	Requested string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s type %q (available: %s)",
		e.Category, e.Requested, strings.Join(e.Available, ", "))
}
