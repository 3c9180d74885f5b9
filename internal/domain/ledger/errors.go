package ledger

import "errors"

var (
	ErrOwnershipNotFound = errors.New("ownership record not found")
	ErrNotOwner          = errors.New("you do not own this file")
)
