package models

import "errors"

var (
	ErrUnknownSubject     = errors.New("unknown subject")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrInvalidOutcome     = errors.New("invalid outcome")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionNotFound    = errors.New("session not found")
)
