package transport

import (
	"fmt"

	"go.uber.org/zap"
)

// Connect negotiates a transport: the low-latency websocket first,
// the long-poll fallback when the upgrade fails.
func Connect(serverURL string, opts Options) (Conn, error) {
	conn, wsErr := DialWebSocket(serverURL, opts)
	if wsErr == nil {
		return conn, nil
	}

	zap.L().Warn(
		"websocket transport unavailable, falling back to polling",
		zap.Error(wsErr),
	)

	conn, pollErr := DialPolling(serverURL, opts)
	if pollErr == nil {
		return conn, nil
	}

	return nil, fmt.Errorf(
		"no transport available: websocket: %v; polling: %w",
		wsErr, pollErr,
	)
}
