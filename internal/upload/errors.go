package upload

import "errors"

var (
	// ErrUnsupportedMediaType is returned when the declared or sniffed content
	// type is not an allowed image type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrPayloadTooLarge is returned when an upload exceeds the byte limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidName is returned for a reference that is not a plain file name.
	ErrInvalidName = errors.New("invalid upload name")
)
