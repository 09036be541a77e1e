package forecasthttp

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"occupancy-forecast/internal/forecasting/application"
	forecasting "occupancy-forecast/internal/forecasting/domain"
)

const timeLayout = time.RFC3339

// ReadStatusHeader reports how a predictions read was served.
const ReadStatusHeader = "X-Forecast-Read-Status"

type seriesResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ExternalID  string `json:"external_id"`
}

type modelResponse struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Granularity  string   `json:"granularity"`
	Forecast     int64    `json:"forecast"`
	ForecastName string   `json:"forecast_name"`
	ExogColumns  []string `json:"exog_columns"`
	ModelType    string   `json:"model_type"`
}

type pointResponse struct {
	ID                 int64   `json:"id"`
	Model              int64   `json:"model"`
	PredictionDatetime string  `json:"prediction_datetime"`
	Value              float64 `json:"value"`
}

type generateRequest struct {
	ModelID    int64  `json:"model_id" validate:"required,gt=0"`
	DataInicio string `json:"data_inicio" validate:"required"`
	DataFim    string `json:"data_fim" validate:"required"`
}

type generateResponse struct {
	Status     string `json:"status"`
	ForecastID int64  `json:"forecast_id"`
	Count      int    `json:"count"`
}

type singleResponse struct {
	ForecastID         int64   `json:"forecast_id"`
	ModelID            int64   `json:"model_id"`
	PredictionDatetime string  `json:"prediction_datetime"`
	Value              float64 `json:"value"`
}

type batchRequest struct {
	StartDate       string             `json:"start_date" validate:"required"`
	EndDate         string             `json:"end_date" validate:"required"`
	Granularity     string             `json:"granularity" validate:"required"`
	InitialFeatures map[string]float64 `json:"initial_features"`
}

type batchResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func (h *Handler) listForecasts(w http.ResponseWriter, r *http.Request) {
	series, err := h.series.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]seriesResponse, 0, len(series))
	for _, s := range series {
		out = append(out, seriesResponse{ID: s.ID, Name: s.Name, Description: s.Description, ExternalID: s.ExternalID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.bindings.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]modelResponse, 0, len(bindings))
	for _, b := range bindings {
		cols := b.ExogColumns
		if cols == nil {
			cols = []string{}
		}
		out = append(out, modelResponse{
			ID:           b.ID,
			Name:         b.Name,
			Granularity:  b.Granularity.String(),
			Forecast:     b.SeriesID,
			ForecastName: b.SeriesName,
			ExogColumns:  cols,
			ModelType:    string(b.Family),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// generate handles POST /predict: full generation for one model over a range.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	binding, count, err := h.orchestrator.GenerateForModel(r.Context(), req.ModelID, req.DataInicio, req.DataFim)
	if err != nil {
		h.logger.WithError(err).WithField("model_id", req.ModelID).Error("generate predictions")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, generateResponse{
		Status:     "Previsões geradas com sucesso.",
		ForecastID: binding.SeriesID,
		Count:      count,
	})
}

// predictions handles GET /forecasts/{id}/predictions with lazy fill.
func (h *Handler) predictions(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.reader.Read(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(ReadStatusHeader, string(result.Status))
	writeJSON(w, http.StatusOK, h.renderPoints(result.Points))
}

// predictOne handles GET /forecasts/{id}/predict: one on-demand point.
func (h *Handler) predictOne(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	query := r.URL.Query()
	req := application.SingleRequest{
		SeriesID:    seriesID,
		Period:      query.Get("period"),
		Granularity: query.Get("granularity"),
		Lags:        map[string]float64{},
	}
	for _, name := range []string{forecasting.LagPreviousHour, forecasting.LagPreviousDay} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %s must be numeric, got %q", forecasting.ErrInvalidInput, name, raw))
			return
		}
		req.Lags[name] = value
	}

	result, err := h.single.Predict(r.Context(), req)
	if err != nil {
		h.logger.WithError(err).WithField("series_id", seriesID).Error("single prediction")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, singleResponse{
		ForecastID:         result.Binding.SeriesID,
		ModelID:            result.Binding.ID,
		PredictionDatetime: h.normalizer.Display(result.Point.At).Format(timeLayout),
		Value:              result.Point.Value,
	})
}

// predictBatch handles POST /forecasts/{id}/predict_batch.
func (h *Handler) predictBatch(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body batchRequest
	if err := h.decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req := application.BatchRequest{
		SeriesID:    seriesID,
		Start:       body.StartDate,
		End:         body.EndDate,
		Granularity: body.Granularity,
	}
	if value, ok := body.InitialFeatures[forecasting.LagPreviousHour]; ok {
		req.InitialPrevHour = &value
	}
	result, err := h.batch.Run(r.Context(), req)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"series_id": seriesID, "granularity": body.Granularity}).Error("batch prediction")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse{
		Status: "Previsões em lote geradas com sucesso.",
		Count:  len(result.Points),
	})
}

func (h *Handler) readRequest(r *http.Request) (application.ReadRequest, error) {
	seriesID, err := pathID(r)
	if err != nil {
		return application.ReadRequest{}, err
	}
	modelID, err := optionalID(r, "model_id")
	if err != nil {
		return application.ReadRequest{}, err
	}
	query := r.URL.Query()
	return application.ReadRequest{
		SeriesID: seriesID,
		ModelID:  modelID,
		Start:    query.Get("start_date"),
		End:      query.Get("end_date"),
	}, nil
}

func (h *Handler) renderPoints(points []forecasting.Point) []pointResponse {
	out := make([]pointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, pointResponse{
			ID:                 p.ID,
			Model:              p.BindingID,
			PredictionDatetime: h.normalizer.Display(p.At).Format(timeLayout),
			Value:              p.Value,
		})
	}
	return out
}

func (h *Handler) decode(r *http.Request, out any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty request body", forecasting.ErrInvalidInput)
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", forecasting.ErrInvalidInput, err)
	}
	if err := h.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", forecasting.ErrInvalidInput, err)
	}
	return nil
}
