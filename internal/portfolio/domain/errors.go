package domain

import "errors"

var (
	ErrNotFound      = errors.New("project not found")
	ErrDuplicateCode = errors.New("business code already in use")
)
