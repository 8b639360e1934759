package proxy

import "errors"

var (
	// ErrUnsupported means the request named a resource or sub-operation the
	// router does not dispatch.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrInvalidRequest means a recognized operation was missing a required
	// field or carried one that could not be decoded.
	ErrInvalidRequest = errors.New("invalid request")
)
