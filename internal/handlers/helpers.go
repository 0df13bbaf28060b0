package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/platform/pagination"

	domain "github.com/gelomax/api/internal/domain"
)

const (
	defaultListPageSize = 20
	maxListPageSize     = 100
	defaultBodySize     = 32 * 1024
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func parseLimitedPageSize(raw string, fallback, max int) (int, error) {
	values := url.Values{}
	if strings.TrimSpace(raw) != "" {
		values.Set("pageSize", raw)
	}
	params, err := pagination.Parse(values, pagination.Options{
		DefaultPageSize: fallback,
		MaxPageSize:     max,
	})
	if err != nil {
		return 0, fmt.Errorf("pageSize must be a positive integer")
	}
	return params.PageSize, nil
}

func parsePageSize(raw string) (int, error) {
	return parseLimitedPageSize(raw, defaultListPageSize, maxListPageSize)
}

func parseUnitParam(raw string) (domain.BusinessUnit, error) {
	unit := domain.BusinessUnit(strings.ToLower(strings.TrimSpace(raw)))
	if unit == "" {
		return "", nil
	}
	if !unit.Valid() {
		return "", fmt.Errorf("unknown business unit %q", raw)
	}
	return unit, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamps must be RFC 3339")
	}
	return ts.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
