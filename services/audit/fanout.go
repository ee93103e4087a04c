package audit

import (
	"context"
	"errors"

	"autoheal/services/healer"
)

// Fanout appends every entry to each sink in order. All sinks are attempted;
// their errors are joined.
type Fanout []healer.AuditLog

func (f Fanout) Append(ctx context.Context, entry healer.AuditEntry) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
