package model

import (
	"strconv"
	"strings"
	"time"
)

// BatchStats describes one indexing batch of an index.
type BatchStats struct {
	Index      string
	StartedAt  time.Time
	Duration   time.Duration
	Documents  int
	Tombstones int
	References int
	MapOutputs int
	Groups     int
	Results    int
	Deleted    int
	Errors     int
	// Canceled is set if the batch stopped before all groups were reduced
	Canceled bool
}

// PartiallyFailed is true if at least one group failed.
func (s BatchStats) PartiallyFailed() bool {
	return s.Errors > 0
}

// Empty is true if the batch had nothing to process.
func (s BatchStats) Empty() bool {
	return s.Documents == 0 && s.Tombstones == 0 && s.References == 0
}

func (s BatchStats) String() string {
	var b strings.Builder
	b.WriteString("<Batch index=")
	b.WriteString(s.Index)
	b.WriteString(" docs=")
	b.WriteString(strconv.Itoa(s.Documents))
	b.WriteString(" tombstones=")
	b.WriteString(strconv.Itoa(s.Tombstones))
	b.WriteString(" references=")
	b.WriteString(strconv.Itoa(s.References))
	b.WriteString(" groups=")
	b.WriteString(strconv.Itoa(s.Groups))
	b.WriteString(" errors=")
	b.WriteString(strconv.Itoa(s.Errors))
	b.WriteString(" duration=")
	b.WriteString(s.Duration.String())
	b.WriteString(">")
	return b.String()
}
