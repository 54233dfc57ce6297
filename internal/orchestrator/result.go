package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// BulkResult aggregates a startAll/stopAll outcome. Bulk operations never
// abort early: every service is attempted and every failure recorded.
type BulkResult struct {
	Attempted []string         `json:"attempted"`
	Failed    []string         `json:"failed,omitempty"`
	Errors    map[string]error `json:"-"`
}

func newBulkResult() *BulkResult {
	return &BulkResult{Errors: make(map[string]error)}
}

func (r *BulkResult) record(name string, err error) {
	r.Attempted = append(r.Attempted, name)
	if err != nil {
		r.Failed = append(r.Failed, name)
		r.Errors[name] = err
	}
}

// OK reports whether every attempted service succeeded.
func (r *BulkResult) OK() bool { return len(r.Failed) == 0 }

// Err folds the aggregate into one error, nil when everything succeeded.
func (r *BulkResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, name := range r.Failed {
		errs = append(errs, r.Errors[name])
	}
	return fmt.Errorf("%d of %d services failed (%s): %w",
		len(r.Failed), len(r.Attempted), strings.Join(r.Failed, ", "), errors.Join(errs...))
}
