package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds, checkable with errors.Is/errors.As.
var (
	ErrProtocolInvalid  = errors.New("protocol: invalid")
	ErrUnknownCommand   = errors.New("protocol: unknown command")
	ErrUnknownSignature = errors.New("protocol: unknown signature")
	ErrDecodeFailure    = errors.New("protocol: decode failure")
	ErrCommandOverflow  = errors.New("protocol: command overflow")
)

// ValidationError collects every offending response encountered while
// unpacking and validating a protocol description. Unlike the source's
// unreachable errors.push in a catch block with errors out of scope
// (spec §9, Open Question), this is a single structured value returned
// from one place — no dead code path, no silent repair.
type ValidationError struct {
	Offenses []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol: invalid: %s", strings.Join(e.Offenses, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrProtocolInvalid
}

func (e *ValidationError) add(format string, args ...any) {
	e.Offenses = append(e.Offenses, fmt.Sprintf(format, args...))
}

func (e *ValidationError) hasOffenses() bool {
	return len(e.Offenses) > 0
}

// UnknownCommandError names the command name that could not be resolved.
type UnknownCommandError struct {
	Name CommandName
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("protocol: unknown command %q", e.Name)
}

func (e *UnknownCommandError) Unwrap() error { return ErrUnknownCommand }

// UnknownSignatureError names the signature bytes that matched no
// Response Definition.
type UnknownSignatureError struct {
	Signature []byte
}

func (e *UnknownSignatureError) Error() string {
	return fmt.Sprintf("protocol: unknown signature %s", hexBytes(e.Signature))
}

func (e *UnknownSignatureError) Unwrap() error { return ErrUnknownSignature }

// DecodeFailureError names the item key and offset where decoding failed.
type DecodeFailureError struct {
	Key    string
	Offset int
	Cause  error
}

func (e *DecodeFailureError) Error() string {
	return fmt.Sprintf("protocol: decode failure at item %q (offset %d): %v", e.Key, e.Offset, e.Cause)
}

func (e *DecodeFailureError) Unwrap() error { return ErrDecodeFailure }

// CommandOverflowError names the command whose encoded payload exceeded
// the protocol's fixed command length.
type CommandOverflowError struct {
	Command CommandName
	Want    int
	Got     int
}

func (e *CommandOverflowError) Error() string {
	return fmt.Sprintf("protocol: command %q overflow: have %d bytes, command length is %d", e.Command, e.Got, e.Want)
}

func (e *CommandOverflowError) Unwrap() error { return ErrCommandOverflow }

func errShortBuffer(offset, byteLength, have int) error {
	return fmt.Errorf("buffer too short: need bytes [%d:%d], have %d", offset, offset+byteLength, have)
}

func errUnknownTextEncoding(enc TextEncoding) error {
	return fmt.Errorf("unknown text encoding %d", enc)
}

func errUnknownItemKind(kind ItemKind) error {
	return fmt.Errorf("unknown item kind %d", kind)
}
