package service

import "errors"

var (
	// ErrInvalidImage indicates the upload is not an acceptable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageNotFound indicates no blob exists under the given name.
	ErrImageNotFound = errors.New("image not found")
	// ErrSourceNotFound indicates the source id is unknown.
	ErrSourceNotFound = errors.New("source not found")
	// ErrInvalidSource indicates a source config failed validation.
	ErrInvalidSource = errors.New("invalid source")
	// ErrSourceExists is returned when a source name is already taken.
	ErrSourceExists = errors.New("source already exists")
	// ErrBatchNotFound indicates the batch id is unknown.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthDisabled is returned by Login when no operator password is configured.
	ErrAuthDisabled = errors.New("authentication is disabled")
)
