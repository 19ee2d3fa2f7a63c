// Package jobs serves the provider dashboard's job list and status changes.
package jobs

import (
	"cmp"
	"errors"
	"slices"
	"strings"

	"sidehustlers/internal/models"
)

type SortField string

const (
	SortByDate     SortField = "date"
	SortByPrice    SortField = "price"
	SortByDuration SortField = "duration"
	SortByStatus   SortField = "status"
)

type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var ErrInvalidQuery = errors.New("jobs: invalid query")

// Query selects and orders a provider's jobs. An empty Status or "all"
// matches every status.
type Query struct {
	Status string
	Search string
	Sort   SortField
	Order  SortOrder
	Page   int64
	Limit  int64
}

func (q Query) normalize() (Query, error) {
	q.Status = strings.TrimSpace(q.Status)
	if q.Status == "all" {
		q.Status = ""
	}
	if q.Status != "" && !models.JobStatus(q.Status).Valid() {
		return q, errors.Join(ErrInvalidQuery, errors.New("unknown status "+q.Status))
	}

	switch q.Sort {
	case "":
		q.Sort = SortByDate
	case SortByDate, SortByPrice, SortByDuration, SortByStatus:
	default:
		return q, errors.Join(ErrInvalidQuery, errors.New("unknown sort "+string(q.Sort)))
	}

	switch q.Order {
	case "":
		q.Order = Descending
	case Ascending, Descending:
	default:
		return q, errors.Join(ErrInvalidQuery, errors.New("unknown order "+string(q.Order)))
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	q.Limit = min(q.Limit, maxLimit)
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	return q, nil
}

// Stats summarise all of a provider's jobs regardless of filters.
type Stats struct {
	Total         int     `json:"total"`
	Scheduled     int     `json:"scheduled"`
	InProgress    int     `json:"inProgress"`
	Completed     int     `json:"completed"`
	TotalEarnings float64 `json:"totalEarnings"`
}

func computeStats(all []models.Job) Stats {
	s := Stats{Total: len(all)}
	for _, j := range all {
		switch j.Status {
		case models.JobStatusScheduled:
			s.Scheduled++
		case models.JobStatusInProgress:
			s.InProgress++
		case models.JobStatusCompleted:
			s.Completed++
			s.TotalEarnings += j.Price
		}
	}
	return s
}

func (q Query) matches(j models.Job) bool {
	if q.Status != "" && string(j.Status) != q.Status {
		return false
	}
	if q.Search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(j.Title), q.Search) ||
		strings.Contains(strings.ToLower(j.Description), q.Search) ||
		strings.Contains(strings.ToLower(j.Location.City), q.Search)
}

func (q Query) compare(a, b models.Job) int {
	var c int
	switch q.Sort {
	case SortByPrice:
		c = cmp.Compare(a.Price, b.Price)
	case SortByDuration:
		c = cmp.Compare(a.DurationInMin, b.DurationInMin)
	case SortByStatus:
		c = strings.Compare(string(a.Status), string(b.Status))
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if q.Order == Descending {
		c = -c
	}
	return c
}

// apply filters, sorts and pages jobs. It returns the page and the number of
// matching jobs.
func (q Query) apply(all []models.Job) ([]models.Job, int64) {
	matched := make([]models.Job, 0, len(all))
	for _, j := range all {
		if q.matches(j) {
			matched = append(matched, j)
		}
	}
	slices.SortStableFunc(matched, q.compare)

	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= total {
		return []models.Job{}, total
	}
	end := min(start+q.Limit, total)
	return matched[start:end], total
}
