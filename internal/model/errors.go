package model

import "errors"

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = errors.New("title must be 500 characters or less")
	ErrInvalidPriority = errors.New("priority must be low, medium or high")
	ErrInvalidType     = errors.New("session type must be focus, break or deep")
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
	ErrInvalidDuration = errors.New("duration must not be negative")
	ErrInvalidTheme    = errors.New("theme must be light, dark or system")
)

const maxTitleLength = 500

func validateTitle(title string) error {
	if title == "" {
		return ErrTitleRequired
	}
	if len(title) > maxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}
