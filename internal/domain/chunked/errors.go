package chunked

import "errors"

var (
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrSessionClosed    = errors.New("upload session is no longer accepting chunks")
	ErrChunkOutOfRange  = errors.New("chunk index out of range")
	ErrChunkConflict    = errors.New("chunk index already uploaded with different size")
	ErrIncompleteUpload = errors.New("not all chunks have been uploaded")
	ErrInvalidRequest   = errors.New("invalid chunked upload parameters")
)
