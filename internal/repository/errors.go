package repository

import "errors"

var (
	ErrRecordNotFound = errors.New("refresh record not found")
	ErrRecordRetired  = errors.New("refresh record retired")
	ErrRecordExists   = errors.New("refresh record already exists")

	// ErrStoreUnavailable wraps every driver level failure.
	ErrStoreUnavailable = errors.New("refresh record store unavailable")
)
