package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Role is the observing purpose of a raw exposure.
type Role string

const (
	RoleBias     Role = "bias"
	RoleFlat     Role = "flat"
	RoleArc      Role = "arc"
	RoleScience  Role = "science"
	RoleStandard Role = "standard"
	RoleGaps     Role = "gaps"
)

// Exposure is an immutable raw observation as delivered by the observatory.
type Exposure struct {
	ID       string
	Site     string
	Date     time.Time
	Sequence int
	Role     Role
}

var exposureIDPattern = regexp.MustCompile(`^([NS])(\d{8})S(\d{4})$`)

// ParseExposure splits an observatory ID such as N20240609S0158.
func ParseExposure(id string, role Role) (Exposure, error) {
	m := exposureIDPattern.FindStringSubmatch(id)
	if m == nil {
		return Exposure{ID: id, Role: role}, fmt.Errorf("artifact: %q is not an observatory exposure id", id)
	}

	date, err := time.Parse("20060102", m[2])
	if err != nil {
		return Exposure{ID: id, Role: role}, fmt.Errorf("artifact: invalid date in %q: %w", id, err)
	}

	seq, err := strconv.Atoi(m[3])
	if err != nil {
		return Exposure{ID: id, Role: role}, fmt.Errorf("artifact: invalid sequence in %q: %w", id, err)
	}

	return Exposure{
		ID:       id,
		Site:     m[1],
		Date:     date,
		Sequence: seq,
		Role:     role,
	}, nil
}
