package scan

import "encoding/json"

// Options configures a single scan. MaxDepth uses -1 for "unbounded"
// because depth zero is a meaningful cap (enumerate only the root);
// MaxEntries zero means unbounded.
type Options struct {
	// BatchSize is the number of pending nodes that triggers a partial
	// emission.
	BatchSize int

	// TimeSliceMs bounds the busy time of one processing slice.
	TimeSliceMs int

	// FollowSymlinks controls whether symlinked directories are entered.
	FollowSymlinks bool

	// MaxDepth caps exploration depth from the root (root = 0).
	// Negative means unbounded.
	MaxDepth int

	// MaxEntries caps total processed entries. Zero means unbounded.
	MaxEntries int

	// IncludeMetadata attaches size/time/symlink detail to each node.
	IncludeMetadata bool
}

// DefaultOptions returns the per-scan defaults.
func DefaultOptions() *Options {
	return &Options{
		BatchSize:   250,
		TimeSliceMs: 12,
		MaxDepth:    -1,
		MaxEntries:  0,
	}
}

// WithBatchSize sets the emission batch size.
func (o *Options) WithBatchSize(n int) *Options {
	o.BatchSize = n
	return o
}

// WithTimeSlice sets the slice budget in milliseconds.
func (o *Options) WithTimeSlice(ms int) *Options {
	o.TimeSliceMs = ms
	return o
}

// WithFollowSymlinks sets symlink traversal behavior.
func (o *Options) WithFollowSymlinks(v bool) *Options {
	o.FollowSymlinks = v
	return o
}

// WithMaxDepth caps exploration depth. Negative means unbounded.
func (o *Options) WithMaxDepth(d int) *Options {
	o.MaxDepth = d
	return o
}

// WithMaxEntries caps total processed entries. Zero means unbounded.
func (o *Options) WithMaxEntries(n int) *Options {
	o.MaxEntries = n
	return o
}

// WithMetadata enables per-node metadata collection.
func (o *Options) WithMetadata(v bool) *Options {
	o.IncludeMetadata = v
	return o
}

// normalized returns a copy with out-of-range values clamped back to
// the defaults.
func (o *Options) normalized() Options {
	out := *o
	if out.BatchSize <= 0 {
		out.BatchSize = 250
	}
	if out.TimeSliceMs <= 0 {
		out.TimeSliceMs = 12
	}
	if out.MaxDepth < 0 {
		out.MaxDepth = -1
	}
	if out.MaxEntries < 0 {
		out.MaxEntries = 0
	}
	return out
}

func (o Options) depthBounded() bool   { return o.MaxDepth >= 0 }
func (o Options) entriesBounded() bool { return o.MaxEntries > 0 }

// MarshalJSON renders the unbounded caps as null so observers see the
// normalised options the way they were advertised.
func (o Options) MarshalJSON() ([]byte, error) {
	var maxDepth, maxEntries *int
	if o.depthBounded() {
		maxDepth = &o.MaxDepth
	}
	if o.entriesBounded() {
		maxEntries = &o.MaxEntries
	}
	return json.Marshal(struct {
		BatchSize       int  `json:"batchSize"`
		TimeSliceMs     int  `json:"timeSliceMs"`
		FollowSymlinks  bool `json:"followSymlinks"`
		MaxDepth        *int `json:"maxDepth"`
		MaxEntries      *int `json:"maxEntries"`
		IncludeMetadata bool `json:"includeMetadata"`
	}{o.BatchSize, o.TimeSliceMs, o.FollowSymlinks, maxDepth, maxEntries, o.IncludeMetadata})
}
