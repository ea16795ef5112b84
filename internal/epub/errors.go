package epub

import (
	"errors"
	"fmt"
)

// Archive and package faults. They abort an import.
var (
	ErrCannotOpenFile     = errors.New("cannot open file")
	ErrCannotExtractFile  = errors.New("cannot extract file")
	ErrCannotReadFile     = errors.New("cannot read file")
	ErrParsingContainer   = errors.New("error parsing container.xml")
	ErrNoAppropriateOPF   = errors.New("no appropriate OPF file found")
	ErrParsingOPF         = errors.New("error parsing OPF file")
	ErrParsingNCX         = errors.New("error parsing NCX file")
	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
)

// PathError records a fault and the file that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// XMLError records an XML fault with its position. Err is one of the
// package sentinels.
type XMLError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *XMLError) Error() string {
	return fmt.Sprintf("%v: %s:%d:%d: %s", e.Err, e.Path, e.Line, e.Column, e.Message)
}

func (e *XMLError) Unwrap() error { return e.Err }
