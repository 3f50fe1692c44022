package builder

import (
	"github.com/tliron/commonlog"

	"ionbuild/internal/mir"
)

const (
	DefaultMaxInstructions = 1 << 20
	DefaultMaxBlocks       = 1 << 16
)

type options struct {
	limits mir.Limits
	log    commonlog.Logger
}

// Option configures a build.
type Option func(*options)

// WithMaxInstructions bounds the number of live instructions in the graph.
// Zero removes the bound.
func WithMaxInstructions(n int) Option {
	return func(o *options) { o.limits.MaxInstructions = n }
}

// WithMaxBlocks bounds the number of basic blocks in the graph.
// Zero removes the bound.
func WithMaxBlocks(n int) Option {
	return func(o *options) { o.limits.MaxBlocks = n }
}

// WithLogger replaces the package logger for one build.
func WithLogger(l commonlog.Logger) Option {
	return func(o *options) { o.log = l }
}

func newOptions(opts []Option) options {
	o := options{
		limits: mir.Limits{MaxInstructions: DefaultMaxInstructions, MaxBlocks: DefaultMaxBlocks},
		log:    log,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
