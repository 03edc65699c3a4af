package engine

import "errors"

var (
	ErrBadConfig     = errors.New("invalid run configuration")
	ErrDataAlignment = errors.New("asset series misaligned")
)
