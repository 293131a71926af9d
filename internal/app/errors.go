package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrSectionNotFound  = errors.New("section not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrMetaFieldTooLong = errors.New("meta field too long")
)
