package closure

// Reporter receives progress events from a traversal. Every BeginAction is
// followed by exactly one CompleteAction; Detail may appear in between.
type Reporter interface {
	BeginAction(name string)
	CompleteAction(ok bool)
	Detail(text string)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) BeginAction(string)  {}
func (NopReporter) CompleteAction(bool) {}
func (NopReporter) Detail(string)       {}

func orNop(r Reporter) Reporter {
	if r == nil {
		return NopReporter{}
	}
	return r
}
