package types

import "errors"

// ErrInvalidArgument marks caller mistakes (nil embedding, negative k,
// empty chunk text). It is the only error kind the retrieval path surfaces
// to callers besides external-persistence violations on the write path.
var ErrInvalidArgument = errors.New("invalid argument")
