package model

import "errors"

// ErrPrecondition marks API misuse: bad arguments or a query the caches cannot answer by contract.
var ErrPrecondition = errors.New("precondition violated")

// Block is a numbered, timestamped chain checkpoint. Timestamp is unix seconds.
type Block struct {
	Number    uint64
	Timestamp int64
}
