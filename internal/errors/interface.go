package errors

// ErrorCode identifies a failure class. Codes are stable strings so they
// can be logged and returned to HTTP clients as-is.
type ErrorCode string

// Error is an error carrying a code, an optional message override, an
// optional payload and an optional cause.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds Errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
