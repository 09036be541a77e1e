package forecasthttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	forecasting "occupancy-forecast/internal/forecasting/domain"
)

type errorResponse struct {
	Erro string `json:"erro"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Erro: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, forecasting.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, forecasting.ErrInvalidDateRange),
		errors.Is(err, forecasting.ErrUnsupportedGranularity),
		errors.Is(err, forecasting.ErrMissingInitialFeature),
		errors.Is(err, forecasting.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid forecast id %q", forecasting.ErrInvalidInput, raw)
	}
	return id, nil
}

// optionalID parses an optional positive integer query parameter; empty means 0.
func optionalID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", forecasting.ErrInvalidInput, name)
	}
	return id, nil
}
