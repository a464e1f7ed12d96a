// Package qmmodel holds the immutable Model container, its
// IdentifiableMap collection, and relation Namespaces.
package qmmodel

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fj1981/modelsql/pkg/qmerr"
)

// Identifier is a non-empty string naming an expression, source column or
// namespace. Identifiers matching reservedPattern are reserved for
// internal use (e.g. __step_hash_id__, __event_index__) and rejected by
// user-facing naming APIs.
type Identifier string

var reservedPattern = regexp.MustCompile(`^__.+__$`)

var (
	identifierValidatorOnce sync.Once
	identifierValidator     *validator.Validate
)

// sharedValidator lazily builds the one *validator.Validate instance
// this package needs; validator.New() does struct-tag reflection setup
// that's worth doing once, not per call.
func sharedValidator() *validator.Validate {
	identifierValidatorOnce.Do(func() {
		identifierValidator = validator.New()
	})
	return identifierValidator
}

// identifierShape is the struct validator.Validate checks an Identifier
// against: non-empty, printable ASCII only (rules out stray control
// characters or whitespace smuggled in from a config file), and capped
// at a sane length.
type identifierShape struct {
	Value string `validate:"required,printascii,max=128"`
}

// IsReserved reports whether id matches the internal-use reservation
// pattern `__.+__`.
func (id Identifier) IsReserved() bool {
	return reservedPattern.MatchString(string(id))
}

// Validate enforces identifier discipline: non-empty, printable-ASCII,
// length-bounded (via validator), and — for user-facing naming APIs —
// not reserved.
func (id Identifier) Validate(allowReserved bool) error {
	if err := sharedValidator().Struct(identifierShape{Value: string(id)}); err != nil {
		return qmerr.NewUserCompilationError(qmerr.CodeInvalidIdentifier,
			"identifier \""+string(id)+"\" is not well-formed").WithCause(err)
	}
	if !allowReserved && id.IsReserved() {
		return qmerr.NewUserCompilationError(qmerr.CodeInvalidIdentifier,
			"identifier \""+string(id)+"\" is reserved for internal use").
			WithDetails("identifiers matching __.+__ may not be set by user code")
	}
	return nil
}
