package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeMissingParameter     ErrorCode = 103
	ErrCodeInvalidProvider      ErrorCode = 104

	// Repository errors (200-299)
	ErrCodeOrderNotFound   ErrorCode = 200
	ErrCodeQueryFailed     ErrorCode = 201
	ErrCodePersistFailed   ErrorCode = 202
	ErrCodeRepositoryInit  ErrorCode = 203
	ErrCodeRecordCorrupted ErrorCode = 204

	// Stream errors (300-399)
	ErrCodeStreamDialFailed     ErrorCode = 300
	ErrCodeStreamWriteFailed    ErrorCode = 301
	ErrCodeStreamDecodeFailed   ErrorCode = 302
	ErrCodeStreamNotConnected   ErrorCode = 303
	ErrCodeStreamHealthTimeout  ErrorCode = 304
	ErrCodeStreamGaveUp         ErrorCode = 305
	ErrCodeStreamAuthRejected   ErrorCode = 306
	ErrCodeStreamClosed         ErrorCode = 307
	ErrCodeInvalidMarketMessage ErrorCode = 308

	// Brokerage errors (400-499)
	ErrCodeBrokerRequestFailed ErrorCode = 400
	ErrCodeBrokerRejected      ErrorCode = 401
	ErrCodeBrokerDecodeFailed  ErrorCode = 402
	ErrCodeRateLimited         ErrorCode = 403

	// Execution errors (500-599)
	ErrCodeOrderFailed         ErrorCode = 500
	ErrCodeOrderNotCancelable  ErrorCode = 501
	ErrCodeSubmissionExhausted ErrorCode = 502
	ErrCodeExecutorStopped     ErrorCode = 503

	// Notifier errors (600-699)
	ErrCodeNotifierPublishFailed ErrorCode = 600
	ErrCodeNotifierUnavailable   ErrorCode = 601
)
