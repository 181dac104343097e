package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidRating    = errors.New("rating must be between 1 and 10")
	ErrSelfRating       = errors.New("owners cannot rate their own objects")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
)
