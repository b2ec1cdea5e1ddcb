package types

import "time"

// StreamType identifies one upstream connection. The order monitor holds its
// own trading-feed socket and reports it as StreamOrderUpdates.
type StreamType string

const (
	StreamMarketData   StreamType = "market_data"
	StreamTrading      StreamType = "trading"
	StreamOrderUpdates StreamType = "order_updates"
)

// ConnectionState is the lifecycle state of one stream connection.
type ConnectionState string

const (
	ConnectionStateDisconnected  ConnectionState = "disconnected"
	ConnectionStateConnecting    ConnectionState = "connecting"
	ConnectionStateConnected     ConnectionState = "connected"
	ConnectionStateAuthenticated ConnectionState = "authenticated"
	ConnectionStateError         ConnectionState = "error"
)

// IsOpen reports whether a socket is open or being opened.
func (s ConnectionState) IsOpen() bool {
	return s == ConnectionStateConnecting || s == ConnectionStateConnected || s == ConnectionStateAuthenticated
}

// ConnectionMetrics are the per-stream health counters.
type ConnectionMetrics struct {
	LastMessageTime time.Time     `json:"last_message_time"`
	MessageCount    int64         `json:"message_count"`
	ErrorCount      int64         `json:"error_count"`
	Latency         time.Duration `json:"latency"`
	ReconnectCount  int64         `json:"reconnect_count"`
}

// StreamStatus is the status of one stream at a point in time.
type StreamStatus struct {
	Stream  StreamType        `json:"stream"`
	State   ConnectionState   `json:"state"`
	Metrics ConnectionMetrics `json:"metrics"`
	Healthy bool              `json:"healthy"`
	// GaveUp is set once the reconnect budget is exhausted; the stream then
	// stays in the error state until an operator restarts it.
	GaveUp    bool   `json:"gave_up"`
	LastError string `json:"last_error,omitempty"`
}

// ConnectionStatusSnapshot is the connection/health broadcast sent downstream.
type ConnectionStatusSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Streams   []StreamStatus `json:"streams"`
}
