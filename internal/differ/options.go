package differ

import (
	"go.uber.org/zap"

	"github.com/arrowgrid/reladiff-go/internal/errs"
)

const (
	DefaultBisectionFactor    = 32
	DefaultBisectionThreshold = 1024 * 16
)

// Options configures a HashBisectDiffer. Construct with New and
// functional With* options, following pkg/fixgres's config idiom.
type Options struct {
	BisectionFactor      int
	BisectionThreshold   int64
	Threaded             bool
	MaxThreadpoolSize    int // 0 means "auto" (unbounded worker spawn)
	SkipSortResults      bool
	DuplicateRowsSupport bool
	AllowEmptyTables     bool
	// SkipChecksum replaces the BENCHMARK env var sentinel: when set,
	// segments under the bisection threshold skip straight to the local
	// comparison instead of running count_and_checksum first.
	SkipChecksum bool

	Logger   *zap.Logger
	Reporter Reporter
}

type Option func(*Options)

func WithBisectionFactor(n int) Option    { return func(o *Options) { o.BisectionFactor = n } }
func WithBisectionThreshold(n int64) Option {
	return func(o *Options) { o.BisectionThreshold = n }
}
func WithThreaded(b bool) Option          { return func(o *Options) { o.Threaded = b } }
func WithMaxThreadpoolSize(n int) Option  { return func(o *Options) { o.MaxThreadpoolSize = n } }
func WithSkipSortResults(b bool) Option   { return func(o *Options) { o.SkipSortResults = b } }
func WithDuplicateRowsSupport(b bool) Option {
	return func(o *Options) { o.DuplicateRowsSupport = b }
}
func WithAllowEmptyTables(b bool) Option { return func(o *Options) { o.AllowEmptyTables = b } }
func WithSkipChecksum(b bool) Option     { return func(o *Options) { o.SkipChecksum = b } }
func WithLogger(l *zap.Logger) Option    { return func(o *Options) { o.Logger = l } }
func WithReporter(r Reporter) Option     { return func(o *Options) { o.Reporter = r } }

func defaultOptions() Options {
	return Options{
		BisectionFactor:      DefaultBisectionFactor,
		BisectionThreshold:   DefaultBisectionThreshold,
		Threaded:             true,
		MaxThreadpoolSize:    1,
		DuplicateRowsSupport: true,
		Logger:               zap.L(),
	}
}

func newOptions(opts ...Option) (Options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BisectionFactor < 2 {
		return o, errs.NewConfigurationError("bisection factor must be >= 2, got %d", o.BisectionFactor)
	}
	if int64(o.BisectionFactor) >= o.BisectionThreshold {
		return o, errs.NewConfigurationError("bisection factor (%d) must be lower than bisection threshold (%d)", o.BisectionFactor, o.BisectionThreshold)
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	return o, nil
}
