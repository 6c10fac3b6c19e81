package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"backoffice/internal/billing"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = repository.ErrNotFound
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// RuleError is a well-formed request refused by a business rule.
type RuleError struct {
	Message string
}

func (e *RuleError) Error() string { return e.Message }

func ruleErr(format string, args ...any) *RuleError {
	return &RuleError{Message: fmt.Sprintf(format, args...)}
}

// forbidden keeps the policy denial in the chain next to ErrForbidden.
func forbidden(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrForbidden, err)
}

func authorize(engine *policy.Engine, action policy.Action, req policy.Request) error {
	return forbidden(engine.Authorize(action, req))
}

// domainErr maps billing errors onto the service taxonomy.
func domainErr(err error) error {
	var fe billing.FieldErrors
	if errors.As(err, &fe) {
		return &ValidationError{Fields: map[string]string(fe)}
	}
	var ne *billing.NotEditableError
	if errors.As(err, &ne) {
		return &RuleError{Message: ne.Error()}
	}
	var te *billing.TransitionError
	if errors.As(err, &te) {
		return &RuleError{Message: te.Error()}
	}
	return err
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", field, ErrNotFound)
	}
	return id, nil
}
