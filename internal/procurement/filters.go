package procurement

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ListFilters narrows order listings. Request parsing stays in the handler;
// the service and repository only see this typed value.
type ListFilters struct {
	Status         OrderStatus
	DeliveryStatus DeliveryStatus
	VendorID       int64
	ProjectID      int64
	Search         string
	OverdueOnly    bool
	Today          time.Time
	Page           int
	PerPage        int
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Normalize applies paging defaults and bounds.
func (f ListFilters) Normalize() ListFilters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset returns the row offset for the current page.
func (f ListFilters) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// ParseListFilters reads filters from query values. Status values pass
// through the legacy normalization boundary.
func ParseListFilters(q url.Values) (ListFilters, error) {
	var f ListFilters
	if raw := q.Get("status"); raw != "" {
		status, err := ParseOrderStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	if raw := q.Get("delivery_status"); raw != "" {
		status, err := ParseDeliveryStatus(raw)
		if err != nil {
			return f, err
		}
		f.DeliveryStatus = status
	}
	var err error
	if f.VendorID, err = parseOptionalID(q, "vendor_id"); err != nil {
		return f, err
	}
	if f.ProjectID, err = parseOptionalID(q, "project_id"); err != nil {
		return f, err
	}
	f.Search = q.Get("search")
	f.OverdueOnly = q.Get("overdue") == "1" || strings.EqualFold(q.Get("overdue"), "true")
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	return f.Normalize(), nil
}

func parseOptionalID(q url.Values, key string) (int64, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &FieldError{Field: key, Message: "must be a positive integer"}
	}
	return id, nil
}
