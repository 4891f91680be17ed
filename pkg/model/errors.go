package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReduceTimeout       = errors.New("reduce execution exceeded the time budget")
	ErrIndexNotFound       = errors.New("index not found")
	ErrIndexExists         = errors.New("index already exists")
	ErrStalenessUnknown    = errors.New("unable to determine staleness")
	ErrIntrospectionFailed = errors.New("unable to introspect key selector")
)

// InvalidDefinitionError is a structural problem of a definition.
type InvalidDefinitionError struct {
	Index  string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	if e.Index == "" {
		return "invalid index definition: " + e.Reason
	}
	return fmt.Sprintf("invalid index definition %q: %s", e.Index, e.Reason)
}

// KeySelectorError is returned if the group-by fields can't be
// extracted from the key-selector of a reduce function.
type KeySelectorError struct {
	Index  string
	Source string
	Reason string
}

func (e *KeySelectorError) Error() string {
	return fmt.Sprintf("index %q: malformed key selector: %s", e.Index, e.Reason)
}

func (e *KeySelectorError) Unwrap() error {
	return ErrIntrospectionFailed
}

// SelfLoopError is returned if an index writes its reduce results into
// a collection it maps or references itself.
type SelfLoopError struct {
	Index            string
	OutputCollection string
	// Referenced is true if the output collection is referenced, not mapped
	Referenced bool
	AllDocs    bool
}

func (e *SelfLoopError) Error() string {
	switch {
	case e.AllDocs:
		return fmt.Sprintf("index %q maps all documents and can't output reduce results to collection %q",
			e.Index, e.OutputCollection)
	case e.Referenced:
		return fmt.Sprintf("index %q references collection %q and can't output reduce results to it",
			e.Index, e.OutputCollection)
	default:
		return fmt.Sprintf("index %q maps collection %q and can't output reduce results to it",
			e.Index, e.OutputCollection)
	}
}

// DuplicateOutputError is returned if another index already writes
// into the output collection.
type DuplicateOutputError struct {
	Index            string
	OutputCollection string
	ExistingIndex    string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("index %q can't output reduce results to collection %q, index %q already does",
		e.Index, e.OutputCollection, e.ExistingIndex)
}

// CycleLink is one edge of a detected cycle: Index consumes From and
// writes its reduce results into To.
type CycleLink struct {
	Index string
	From  string
	To    string
}

func (l CycleLink) String() string {
	return fmt.Sprintf("%s: %s => %s", l.Index, l.From, l.To)
}

// CycleError contains the full chain of indexes and collections that
// form a loop.
type CycleError struct {
	Index string
	Chain []CycleLink
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, l := range e.Chain {
		parts[i] = l.String()
	}
	return fmt.Sprintf("index %q creates an infinite indexing loop: %s", e.Index, strings.Join(parts, " -> "))
}

// ReduceExecutionError wraps a failure inside the user reduce function.
type ReduceExecutionError struct {
	Index   string
	Key     string
	Source  string
	Timeout bool
	Cause   error
}

func (e *ReduceExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("index %q: reduce of key %s timed out: %v", e.Index, e.Key, e.Cause)
	}
	return fmt.Sprintf("index %q: reduce of key %s failed: %v", e.Index, e.Key, e.Cause)
}

func (e *ReduceExecutionError) Unwrap() error {
	return e.Cause
}

// Detailed includes the reduce function source and the stack of the cause.
func (e *ReduceExecutionError) Detailed() string {
	return fmt.Sprintf("%s\n%+v\nreduce function:\n%s", e.Error(), e.Cause, e.Source)
}

// MissingGroupByFieldError is returned when an output doesn't contain
// all group-by fields of the definition.
type MissingGroupByFieldError struct {
	Index   string
	Output  string
	Source  string
	Missing []string
	Found   int
}

func (e *MissingGroupByFieldError) Error() string {
	return fmt.Sprintf("index %q: output %s is missing group by field(s) %s (found %d)",
		e.Index, e.Output, strings.Join(e.Missing, ", "), e.Found)
}
