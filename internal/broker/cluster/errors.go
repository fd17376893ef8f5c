package cluster

import "fmt"

// errNoStatusCode indicates Collect was called before Dispatch recorded a
// cluster handle, an orchestrator ordering bug rather than a cluster
// failure.
func errNoStatusCode(setSubmitID string) error {
	return fmt.Errorf("set submit %q has no recorded cluster handle", setSubmitID)
}
