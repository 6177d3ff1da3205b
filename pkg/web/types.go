package web

import "github.com/dukex/ifured/pkg/models"

// ListRunsRequest holds the query parameters of GET /runs.
type ListRunsRequest struct {
	Workflow string `validate:"omitempty,oneof=standard-star calibrations science mdf"`
	Status   string `validate:"omitempty,oneof=running completed failed"`
	Limit    int    `validate:"min=0,max=100"`
	Offset   int    `validate:"min=0"`
}

type ListRunsResponse struct {
	Runs       []*models.Run `json:"runs"`
	Count      int           `json:"count"`
	Pagination Pagination    `json:"pagination"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// StepsResponse is the step history of one run.
type StepsResponse struct {
	RunID  string               `json:"run_id"`
	Status models.RunStatus     `json:"status"`
	Steps  []*models.StepRecord `json:"steps"`
}
