package common

const (
	// RequestIDHeaderName carries the per-request correlation id.
	RequestIDHeaderName = "X-Request-ID"

	// SlotCount is the fixed number of image slots per key.
	SlotCount = 3
)
