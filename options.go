package pinheap

import "go.uber.org/zap"

// Option configures a Heap at construction time, a small functional-options
// style rather than a growing positional parameter list.
type Option func(*heapConfig)

type heapConfig struct {
	logger *zap.Logger
}

// WithLogger attaches a zap logger a Heap uses to report each collection
// cycle (whether it is the teardown cycle, page-set count, slots reclaimed)
// at debug level. Without this option, or with a nil l, a Heap uses
// zap.NewNop: logging is free until configured.
func WithLogger(l *zap.Logger) Option {
	return func(c *heapConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func newHeapConfig(opts []Option) *heapConfig {
	c := &heapConfig{logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}
