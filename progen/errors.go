package progen

import "errors"

// Error taxonomy. Construction-time failures are fatal for the call
// (nothing partially built is returned); the rest reject the single
// request without affecting other in-flight work.
var (
	// ErrInvalidConfig is returned when a model configuration is
	// internally inconsistent.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidTagCategory is returned when a tag set names a
	// category outside the configured schema.
	ErrInvalidTagCategory = errors.New("invalid tag category")

	// ErrSchemaMismatch is returned when a checkpoint blob's recorded
	// configuration disagrees with the instantiating configuration.
	ErrSchemaMismatch = errors.New("checkpoint schema mismatch")

	// ErrContextOverflow is returned when prefix plus sequence exceed
	// the configured maximum context length.
	ErrContextOverflow = errors.New("context length exceeded")

	// ErrNumericFault is returned when a training batch produces a
	// non-finite loss or gradient; the batch is skipped whole.
	ErrNumericFault = errors.New("numeric fault in batch")
)
