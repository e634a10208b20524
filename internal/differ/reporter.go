package differ

// Reporter receives InfoTree node lifecycle events as a diff runs. It
// is an optional observability hook (internal/progress implements one
// backed by a websocket fan-out); HashBisectDiffer never requires a
// Reporter to be set.
type Reporter interface {
	NodeStarted(level int, keyRange string)
	NodeResolved(level int, keyRange string, isDiff bool, count1, count2 int64)
	LeafMaterialized(level int, keyRange string, diffCount int)
}

// NopReporter discards every event; used as the default Reporter so
// callers never need a nil check.
type NopReporter struct{}

func (NopReporter) NodeStarted(level int, keyRange string)                                {}
func (NopReporter) NodeResolved(level int, keyRange string, isDiff bool, count1, count2 int64) {}
func (NopReporter) LeafMaterialized(level int, keyRange string, diffCount int)             {}
