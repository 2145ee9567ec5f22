package authority

import "fmt"

// LookupError wraps a transient authority failure: transport errors,
// unexpected HTTP statuses, unparseable payloads. The caller decides whether
// to retry or skip; the client itself never retries.
type LookupError struct {
	Resource string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("authority lookup %s: %v", e.Resource, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
