package errors

// GenerationError reports a failure of the external content/image generation
// subsystem. Retryable tells the scheduler whether another attempt may succeed.
type GenerationError struct {
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation failed"
	}
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewRetryableGenerationError wraps err as a generation error worth retrying
func NewRetryableGenerationError(err error) error {
	return WithStack(&GenerationError{Retryable: true, Err: err})
}

// NewTerminalGenerationError wraps err as a generation error that must not be retried
func NewTerminalGenerationError(err error) error {
	return WithStack(&GenerationError{Retryable: false, Err: err})
}

// NewTimeoutError creates a retryable generation error for a gateway deadline overrun
func NewTimeoutError(format string, args ...interface{}) error {
	return NewRetryableGenerationError(Mark(Newf(format, args...), ErrTimeout))
}

// IsRetryable reports whether err is a GenerationError marked retryable.
// Timeouts are always retryable; anything else that is not a GenerationError is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var genErr *GenerationError
	if As(err, &genErr) {
		return genErr.Retryable
	}
	return IsTimeoutError(err)
}

// IsGenerationError reports whether err is or wraps a GenerationError
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return err != nil && As(err, &genErr)
}
