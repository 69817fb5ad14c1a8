package enrollment

import "errors"

var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrInvalidFreezeDays  = errors.New("freeze days must be between 1 and 90")
	ErrFreezeCapExceeded  = errors.New("freeze would exceed the 90 day lifetime allowance")
	ErrNotActive          = errors.New("enrollment is not active")
	ErrNotFrozen          = errors.New("enrollment is not frozen")
	ErrWrongPassword      = errors.New("password confirmation failed")
	ErrAlreadyCancelled   = errors.New("enrollment is already cancelled")
)

var ErrNoAccess = errors.New("no access to this content")
