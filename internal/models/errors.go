package models

import (
	"errors"
)

var (
	ErrNoRecord           = errors.New("models: no matching record found")
	ErrInvalidCredentials = errors.New("models: invalid credentials")
	ErrUserNotFound       = errors.New("models: user not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrForbidden          = errors.New("forbidden")
)

var (
	ErrWrongPaymentMethod  = errors.New("payment method is not pix")
	ErrFileTooLarge        = errors.New("file exceeds the maximum allowed size")
	ErrUnsupportedFile     = errors.New("unsupported file type")
	ErrAttachmentTooLarge  = errors.New("attachment too large")
	ErrEmptyMessage        = errors.New("message has neither text nor attachment")
	ErrEmptyRecording      = errors.New("recording is empty")
	ErrMicrophoneNotLive   = errors.New("microphone is not available")
	ErrRecordingInProgress = errors.New("a recording is already in progress")
	ErrNotRecording        = errors.New("no recording in progress")
)
