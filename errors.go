package main

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleReference means the text at a recorded offset no longer holds
	// the expected state token.
	ErrStaleReference = errors.New("stale task reference")

	// ErrUnknownState means a custom token is missing from the indexed state set.
	ErrUnknownState = errors.New("unknown task state")

	// ErrMissingNode means the expected task node could not be found.
	ErrMissingNode = errors.New("no task at position")
)

// ReferenceError reports a backlink that could not be updated
type ReferenceError struct {
	Ref Backlink
	Err error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference %s: %v", e.Ref, e.Err)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}
