package telemetry

import "errors"

// ErrNotFound is returned by ReadLatest when the store has no sample at all
// for the equipment (as opposed to a stale one, which is still returned).
var ErrNotFound = errors.New("telemetry: sample not found")
