package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotApplied    = errors.New("repair not applied")
	ErrAmbiguous     = errors.New("ambiguous candidates")
	ErrUnsupported   = errors.New("unsupported document type")
	ErrInvalidPath   = errors.New("invalid path")
)
