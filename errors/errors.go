package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrInvalidCredential = fmt.Errorf("invalid credential")
	ErrUserNotFound      = fmt.Errorf("user not found")
	ErrAlreadySubscribed = fmt.Errorf("identity already has an active subscription")
	ErrInvalidCursor     = fmt.Errorf("invalid history cursor")
	ErrSessionClosed     = fmt.Errorf("session closed")
)
