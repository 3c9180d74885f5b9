package registry

import "errors"

var (
	ErrHashNotFound = errors.New("hash not found")
	ErrRefUnderflow = errors.New("reference count already zero")
	ErrInvalidHash  = errors.New("malformed content hash")
)
