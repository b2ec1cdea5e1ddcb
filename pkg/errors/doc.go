// Package errors holds the engine's error taxonomy.
//
// Failures raised by the engine are *Error values carrying an ErrorCode from one
// of these ranges:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid parameters, configuration and order requests
//   - Repository errors (200-299): Order records not found or failing to persist
//   - Stream errors (300-399): WebSocket transport, handshake and decode failures
//   - Brokerage errors (400-499): REST calls against the brokerage API
//   - Execution errors (500-599): Order lifecycle and cancellation errors
//   - Notifier errors (600-699): Delivery to downstream consumers
//
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//	err := errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", id)
//	err := errors.Wrap(errors.ErrCodeBrokerRequestFailed, "failed to submit order", cause)
//
//	if errors.HasCode(err, errors.ErrCodeOrderNotFound) { ... }
//
// Faults reported by the brokerage on a stream keep the brokerage's own numeric
// code instead. ClassifyAlpacaError turns an error message's code into an
// *AlpacaError, or one of its subtypes when the code has a dedicated meaning:
//   - 401, 402: *AuthenticationError, fatal for the connection
//   - 405: *SubscriptionError, the symbol limit was exceeded
//   - 406: *ConnectionLimitError, the account holds too many stream connections
//
// Transport faults on a named stream are *WebSocketError values. They carry the
// close code when the peer sent one, or a WSCode* constant (4000-4004) otherwise.
// IsAuthenticationError, IsSubscriptionError, IsConnectionLimitError and
// AlpacaCode inspect the whole chain, so a classified error may be wrapped in an
// *Error and still be recognized.
package errors
