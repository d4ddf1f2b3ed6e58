package apperrors

import "errors"

// ErrInvalidRequest marks a request the pipeline was never asked to run because
// it could not be decoded or was missing required fields.
var ErrInvalidRequest = errors.New("invalid request")
