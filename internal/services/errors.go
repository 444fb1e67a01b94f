package services

import "errors"

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidKind  = errors.New("invalid message kind")
	ErrNotFound     = errors.New("not found")
)

const (
	RoleRecruiter = "recruiter"
	RoleStudent   = "student"
	RoleMentor    = "mentor"
)
