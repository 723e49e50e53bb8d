package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated call metrics over a range.

type SummaryRequest struct {
	Range TimeRange `json:"range"`
}

// Summary is the ops view of platform activity. Counts come from the
// immutable call-event trail; nothing here identifies a scanner.

type Summary struct {
	Scans          int `json:"scans"`
	CallsInitiated int `json:"calls_initiated"`
	CallsBridged   int `json:"calls_bridged"`
	CallsFailed    int `json:"calls_failed"`
	CallsEnded     int `json:"calls_ended"`

	// BridgeRate is bridged over initiated, 0 when nothing was initiated.
	BridgeRate float64 `json:"bridge_rate"`
}
