package group

import (
	"bytes"
	"context"

	"github.com/goydb/mrindex/internal/reduce/reducekey"
	"github.com/goydb/mrindex/pkg/model"
)

type keyState int

const (
	keyUnset keyState = iota
	keyComputed
)

// sideKey caches the reduce key of the last map output it was computed
// for. The key is recomputed only if a different output is passed.
type sideKey struct {
	state keyState
	ref   *model.MapOutput
	proc  *reducekey.Processor
}

type computeFunc func(ctx context.Context, p *reducekey.Processor, out *model.MapOutput) error

// ensure makes sure the processor holds the key of out, it returns true
// if the key had to be computed.
func (s *sideKey) ensure(ctx context.Context, out *model.MapOutput, compute computeFunc) (bool, error) {
	if s.state == keyComputed && s.ref == out {
		return false, nil
	}

	s.invalidate()
	err := compute(ctx, s.proc, out)
	if err != nil {
		s.invalidate()
		return true, err
	}
	s.state = keyComputed
	s.ref = out
	return true, nil
}

func (s *sideKey) invalidate() {
	s.state = keyUnset
	s.ref = nil
	s.proc.Reset()
}

// equalKeys compares two computed keys. Keys without any processed
// field are equal to each other and different from every other key.
// The hash is never used for equality.
func equalKeys(x, y *reducekey.Processor) bool {
	xs, ys := x.IsSet(), y.IsSet()
	if !xs && !ys {
		return true
	}
	if xs != ys {
		return false
	}
	return bytes.Equal(x.Key(), y.Key())
}
