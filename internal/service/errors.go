package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/install-dispatch/internal/lifecycle"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

// invalidTextRepresentation is the SQLSTATE Postgres reports for input such as
// a malformed UUID.
const invalidTextRepresentation = "22P02"

// mapError translates core and repository errors into API errors. resource
// and id describe the entity the caller was working on.
func mapError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var transitionErr *lifecycle.InvalidTransitionError
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &transitionErr):
		details := map[string]any{
			"from":      transitionErr.From,
			"attempted": transitionErr.Attempted,
		}
		if transitionErr.Reason != "" {
			details["reason"] = transitionErr.Reason
		}
		return apperrors.NewInvalidTransition(transitionErr.Error(), details)
	case errors.Is(err, scheduling.ErrMalformedKey):
		return apperrors.NewMalformedKey(err)
	case errors.Is(err, lifecycle.ErrNotInBuffer):
		return apperrors.NewNotInBuffer(id)
	case errors.Is(err, lifecycle.ErrAlreadyClaimed), errors.Is(err, repository.ErrRequestClaimed):
		return apperrors.NewAlreadyClaimed(id)
	case errors.Is(err, lifecycle.ErrMissingIdentifier), errors.Is(err, lifecycle.ErrInvalidInput),
		errors.Is(err, scheduling.ErrInvalidDate):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(fmt.Sprintf("%s was modified concurrently", resource), map[string]any{"id": id})
	case errors.Is(err, repository.ErrSlotTaken):
		return apperrors.NewConflict("slot reserved by another order", map[string]any{"reason": err.Error()})
	case errors.Is(err, repository.ErrCacheMiss), errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation:
		return apperrors.NewValidationError(fmt.Sprintf("malformed %s identifier", resource), map[string]any{"id": id})
	}
	return apperrors.NewInternalError(err)
}
