package enums

import "fmt"

// OutboxDLQErrorReason records why the relay gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts is a publish that kept failing.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable is a row whose payload or type cannot be relayed.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnroutable is a resolved event with no publisher for its topic.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable:
		return true
	}
	return false
}

// ParseOutboxDLQErrorReason reads a reason from a query string filter.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	reason := OutboxDLQErrorReason(value)
	if !reason.IsValid() {
		return "", fmt.Errorf("unknown dlq reason %q", value)
	}
	return reason, nil
}
