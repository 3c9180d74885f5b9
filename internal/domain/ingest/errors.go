package ingest

import "errors"

var (
	ErrEmptyFile            = errors.New("file is empty")
	ErrPayloadTooLarge      = errors.New("file exceeds maximum allowed size")
	ErrUnsupportedMediaType = errors.New("file type is not allowed")
	ErrStorageUnavailable   = errors.New("storage write failed")
)
