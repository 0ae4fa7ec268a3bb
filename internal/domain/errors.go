package domain

import "errors"

var (
	// ErrConfiguration indicates invalid parameters, such as fetch_k < k or a
	// malformed extraction catalogue.
	ErrConfiguration = errors.New("configuration error")

	// ErrIndexMissing indicates the index directory or its data file does not exist.
	ErrIndexMissing = errors.New("index missing")

	// ErrIndexCorrupt indicates the index is present but cannot be read back.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrDimensionMismatch indicates the embedder used at load time produces
	// vectors of a different size than the one used at build time.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrPathNotResolved indicates a manifest reference could not be found by
	// any resolution rule. It is informational; callers decide if it is fatal.
	ErrPathNotResolved = errors.New("path not resolved")
)
