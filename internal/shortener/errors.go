package shortener

import "errors"

var (
	ErrNotFound      = errors.New("shortener: code not found")
	ErrAlreadyExists = errors.New("shortener: code already exists")
)
