package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported means a platform prerequisite is missing.
	ErrNotSupported = errors.New("push notifications not supported")
	// ErrPermissionDenied means the user blocked notifications. Only the
	// platform settings can undo it.
	ErrPermissionDenied = errors.New("notification permission denied, enable it in the browser settings")
	// ErrPermissionNotGranted means the prompt was dismissed or refused.
	ErrPermissionNotGranted = errors.New("notification permission not granted")
)

// Subscribe steps.
const (
	StepSupport           = "check support"
	StepPermission        = "request permission"
	StepRegistration      = "wait for registration"
	StepFetchKey          = "fetch vapid key"
	StepDecodeKey         = "decode vapid key"
	StepPlatformSubscribe = "platform subscribe"
	StepServerRegister    = "register with server"
)

// StepError reports which subscribe step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("subscribe: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}
