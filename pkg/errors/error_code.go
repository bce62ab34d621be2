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
	ErrCodeInvalidInstrument    ErrorCode = 103
	ErrCodeMissingParameter     ErrorCode = 104
	ErrCodeInvalidVersion       ErrorCode = 105

	// Connector lifecycle errors (200-299)
	ErrCodeConnectorNotRunning     ErrorCode = 200
	ErrCodeConnectorAlreadyRunning ErrorCode = 201
	ErrCodeConnectorStopped        ErrorCode = 202
	ErrCodeAddAfterRun             ErrorCode = 203
	ErrCodeInstrumentExists        ErrorCode = 204
	ErrCodeUnknownInstrument       ErrorCode = 205
	ErrCodeUnknownVenue            ErrorCode = 206
	ErrCodeVenueExists             ErrorCode = 207
	ErrCodeUnsupportedConnector    ErrorCode = 208

	// Channel errors (300-399)
	ErrCodeChannelClosed ErrorCode = 300

	// Order tracking errors (400-499)
	ErrCodeDuplicateOrderID  ErrorCode = 400
	ErrCodeUnknownOrder      ErrorCode = 401
	ErrCodeInvalidTransition ErrorCode = 402
	ErrCodeOverfill          ErrorCode = 403

	// Transport errors (500-599)
	ErrCodeRequestFailed ErrorCode = 500
	ErrCodeStreamFailed  ErrorCode = 501
	ErrCodeTimeout       ErrorCode = 502

	// Journal errors (600-699)
	ErrCodeJournalWriteFailed  ErrorCode = 600
	ErrCodeJournalQueryFailed  ErrorCode = 601
	ErrCodeJournalExportFailed ErrorCode = 602
)
