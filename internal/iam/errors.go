package iam

import "errors"

var (
	ErrNoIdentity    = errors.New("agent identity not found")
	ErrInvalidGrant  = errors.New("invalid resource or actions")
)
