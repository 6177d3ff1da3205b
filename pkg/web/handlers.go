// Package web serves the run journal over HTTP.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/ifured/pkg/models"
	"github.com/dukex/ifured/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultLimit = 20

type APIHandlers struct {
	journal   persistence.Persistence
	validator *validator.Validate
}

func NewAPIHandlers(journal persistence.Persistence, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		journal:   journal,
		validator: validator,
	}
}

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	req, err := parseListRunsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}

	opts := persistence.ListRunsOptions{
		Workflow: req.Workflow,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}
	if req.Status != "" {
		status := models.RunStatus(req.Status)
		opts.Status = &status
	}

	runs, err := h.journal.Runs(c.Context(), opts)
	if err != nil {
		return handleJournalError(c, err)
	}

	return c.JSON(ListRunsResponse{
		Runs:       runs,
		Count:      len(runs),
		Pagination: Pagination{Limit: req.Limit, Offset: req.Offset},
	})
}

func parseListRunsRequest(c fiber.Ctx) (ListRunsRequest, error) {
	req := ListRunsRequest{
		Workflow: c.Query("workflow"),
		Status:   c.Query("status"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return req, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return req, err
		}

		req.Offset = offset
	}

	return req, nil
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.journal.RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleJournalError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunSteps(c fiber.Ctx) error {
	run, err := h.journal.RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleJournalError(c, err)
	}

	return c.JSON(StepsResponse{RunID: run.ID, Status: run.Status, Steps: run.Steps})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "ifured journal is healthy"
	httpStatus := http.StatusOK
	check := "ok"

	if err := h.journal.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "ifured journal is unhealthy"
		httpStatus = http.StatusInternalServerError
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"journal": check,
		},
		"timestamp": time.Now().UTC(),
	})
}
