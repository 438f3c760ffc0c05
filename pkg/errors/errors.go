// Package errors defines the failure taxonomy of the reconciliation pipeline.
// Per-row failures (FormatError, ResolutionError) are recorded in reports;
// EnvironmentGuardError and PersistenceError abort the stage.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Unresolved reasons recorded in stage reports
const (
	ReasonMissingCityID        = "missing_city_id"
	ReasonInvalidPlaceIDFormat = "invalid_place_id_format"
	ReasonMalformedGraphRow    = "malformed_graph_row"
)

// FormatError is returned when a place id fails the shape check.
type FormatError struct {
	PlaceID string
}

func NewFormatError(placeID string) *FormatError {
	return &FormatError{PlaceID: placeID}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid place id format: %q", e.PlaceID)
}

// ResolutionError is returned when the geocoding provider fails or returns an incomplete city.
type ResolutionError struct {
	PlaceID string
	Message string
	Err     error
}

func NewResolutionError(placeID string, message string) *ResolutionError {
	return &ResolutionError{PlaceID: placeID, Message: message}
}

func WrapResolutionError(placeID string, err error) *ResolutionError {
	if err == nil {
		return nil
	}
	var resolutionErr *ResolutionError
	if stderrors.As(err, &resolutionErr) {
		return resolutionErr
	}
	return &ResolutionError{PlaceID: placeID, Message: err.Error(), Err: err}
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve place %s: %s", e.PlaceID, e.Message)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// EnvironmentGuardError is returned when a stage is invoked in an environment it refuses.
type EnvironmentGuardError struct {
	Stage       string
	Environment string
	Reason      string
}

func NewEnvironmentGuardError(stage, environment, reason string) *EnvironmentGuardError {
	return &EnvironmentGuardError{Stage: stage, Environment: environment, Reason: reason}
}

func (e *EnvironmentGuardError) Error() string {
	return fmt.Sprintf("stage '%s' refused in environment '%s': %s", e.Stage, e.Environment, e.Reason)
}

// PersistenceError is returned when a store write fails. It aborts the current batch only.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persistence failure during %s", e.Op)
	}
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PreconditionError is returned when an unresolved city reaches the canonical writer.
type PreconditionError struct {
	CityID  string
	Missing []string
}

func NewPreconditionError(cityID string, missing []string) *PreconditionError {
	return &PreconditionError{CityID: cityID, Missing: missing}
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("city %q is not resolved (missing: %s)", e.CityID, strings.Join(e.Missing, ", "))
}

// UnresolvedCityError is the contract returned to event/user write paths when a
// city id has no resolved canonical row.
type UnresolvedCityError struct {
	CityID string
	Reason string
}

func NewUnresolvedCityError(cityID, reason string) *UnresolvedCityError {
	return &UnresolvedCityError{CityID: cityID, Reason: reason}
}

func (e *UnresolvedCityError) Error() string {
	return fmt.Sprintf("city %q is not a resolved canonical city: %s", e.CityID, e.Reason)
}

func (e *UnresolvedCityError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("city_id", e.CityID).
		AddMetaValue("reason", e.Reason)
}

// Reason maps a per-row failure onto the reason recorded in stage reports.
func Reason(err error) string {
	var formatErr *FormatError
	if stderrors.As(err, &formatErr) {
		if strings.TrimSpace(formatErr.PlaceID) == "" {
			return ReasonMissingCityID
		}
		return ReasonInvalidPlaceIDFormat
	}
	return err.Error()
}

func IsFormatError(err error) bool {
	var target *FormatError
	return stderrors.As(err, &target)
}

func IsResolutionError(err error) bool {
	var target *ResolutionError
	return stderrors.As(err, &target)
}

func IsEnvironmentGuardError(err error) bool {
	var target *EnvironmentGuardError
	return stderrors.As(err, &target)
}

func IsPersistenceError(err error) bool {
	var target *PersistenceError
	return stderrors.As(err, &target)
}

func IsPreconditionError(err error) bool {
	var target *PreconditionError
	return stderrors.As(err, &target)
}

func IsUnresolvedCityError(err error) bool {
	var target *UnresolvedCityError
	return stderrors.As(err, &target)
}
