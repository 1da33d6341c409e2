package payment

import "fmt"

// UpstreamError carries a non-2xx gateway response. Surfaced as 502 by the
// API layer, never swallowed.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Body)
}
