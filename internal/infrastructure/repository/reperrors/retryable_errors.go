package reperrors

import (
	"errors"
	"net"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// IsRetryableError reports whether a failed history insert is worth another
// attempt: network timeouts plus the ClickHouse exception codes treated as
// transient.
func IsRetryableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var exception *clickhouse.Exception
	for {
		if errors.As(err, &exception) {
			switch exception.Code {
			case 209, 516, 160, 241, 319, 1002:
				return true
			}
		}

		// walk wrapped errors, covers errors.Join and %w chains
		nextErr := errors.Unwrap(err)
		if nextErr == nil {
			break
		}
		err = nextErr
	}

	return false
}
