package web

import (
	"errors"

	"github.com/dukex/ifured/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// Problem types returned in the "type" member.
const (
	problemValidation = "validation_error"
	problemNotFound   = "not_found"
	problemInternal   = "internal_error"
)

func respondProblem(c fiber.Ctx, status int, kind string, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return respondProblem(c, fiber.StatusBadRequest, problemValidation, detail)
}

// handleJournalError maps journal errors to problem responses. Unexpected
// errors keep their message so a broken journal directory is diagnosable.
func handleJournalError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsRunNotFound(err):
		return respondProblem(c, fiber.StatusNotFound, problemNotFound, "run not found")
	case errors.Is(err, persistence.ErrInvalidRunID):
		return badRequest(c, "invalid run id")
	default:
		return respondProblem(c, fiber.StatusInternalServerError, problemInternal, err.Error())
	}
}
