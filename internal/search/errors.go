package search

import (
	"errors"
	"fmt"
)

// QueryExecutionError reports a store-level query failure together with the
// offending predicate.
type QueryExecutionError struct {
	Predicate string
	Err       error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed for %s: %v", e.Predicate, e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// NewQueryExecutionError wraps a store failure with the predicate of the
// query that triggered it.
func NewQueryExecutionError(q *Query, err error) *QueryExecutionError {
	return &QueryExecutionError{Predicate: q.String(), Err: err}
}

// IsQueryExecutionError reports whether err contains a QueryExecutionError.
func IsQueryExecutionError(err error) bool {
	var qe *QueryExecutionError
	return errors.As(err, &qe)
}
