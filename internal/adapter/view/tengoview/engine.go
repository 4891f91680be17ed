// Package tengoview runs tengo map and reduce functions.
package tengoview

import (
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/goydb/mrindex/pkg/port"
)

var _ port.ScriptEngine = (*Engine)(nil)

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func newScript(source string) *tengo.Script {
	script := tengo.NewScript([]byte(source))
	script.SetImports(stdlib.GetModuleMap(
		"text",   // regular expressions, string conversion, and manipulation
		"math",   // mathematical constants and functions
		"times",  // time-related functions
		"fmt",    // formatting functions
		"json",   // JSON functions
		"enum",   // Enumeration functions
		"hex",    // hex encoding and decoding functions
		"base64", // base64 encoding and decoding functions
	))
	return script
}

func (e *Engine) CompileMap(source string) (port.MapFunc, error) {
	return NewMapFunc(source)
}

func (e *Engine) CompileReduce(source string) (port.ReduceFunc, error) {
	return NewReduceFunc(source)
}

// GroupByFields runs the key selector of the reduce function with a
// recording object. Tengo maps are unordered, so the fields of an
// object key are sorted by name.
func (e *Engine) GroupByFields(reduceSource string) ([]model.GroupByField, error) {
	fields, err := introspect(reduceSource)
	if err != nil {
		return nil, &model.KeySelectorError{Source: reduceSource, Reason: err.Error()}
	}
	return fields, nil
}
