package forecasthttp

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/observability/metrics"
)

// ExportRow is one rendered prediction.
type ExportRow struct {
	At      time.Time
	ModelID int64
	Value   float64
}

var exportContentTypes = map[string]string{
	"csv":  "text/csv",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pdf":  "application/pdf",
}

// export handles GET /forecasts/{id}/predictions/export.{format}. It renders stored
// points only; gaps are not regenerated.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(chi.URLParam(r, "format"))
	contentType, ok := exportContentTypes[format]
	if !ok {
		metrics.IncExport(format, metrics.ResultError)
		writeError(w, fmt.Errorf("%w: unsupported export format %q", forecasting.ErrInvalidInput, format))
		return
	}
	req, err := h.readRequest(r)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		writeError(w, err)
		return
	}
	req.SkipFill = true
	series, err := h.series.Get(r.Context(), req.SeriesID)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		writeError(w, err)
		return
	}
	result, err := h.reader.Read(r.Context(), req)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		writeError(w, err)
		return
	}

	rows := make([]ExportRow, 0, len(result.Points))
	for _, p := range result.Points {
		rows = append(rows, ExportRow{At: h.normalizer.Display(p.At), ModelID: p.BindingID, Value: p.Value})
	}

	var payload []byte
	switch format {
	case "csv":
		payload, err = BuildPredictionsCSV(rows)
	case "xlsx":
		payload, err = BuildPredictionsXLSX(series, rows)
	case "pdf":
		payload, err = BuildPredictionsPDF(series, rows)
	}
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.logger.WithError(err).WithField("series_id", series.ID).Error("export predictions")
		writeError(w, err)
		return
	}
	metrics.IncExport(format, metrics.ResultSuccess)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"forecast-%d.%s\"", series.ID, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// BuildPredictionsCSV renders rows as prediction_datetime,model,value.
func BuildPredictionsCSV(rows []ExportRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"prediction_datetime", "model", "value"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.At.Format(timeLayout),
			strconv.FormatInt(row.ModelID, 10),
			strconv.FormatFloat(row.Value, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPredictionsXLSX renders a summary sheet and a predictions sheet.
func BuildPredictionsXLSX(series forecasting.Series, rows []ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	pointsSheet := "predictions"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(pointsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Forecast")
	_ = f.SetCellValue(summarySheet, "B1", series.Name)
	_ = f.SetCellValue(summarySheet, "A2", "Description")
	_ = f.SetCellValue(summarySheet, "B2", series.Description)
	_ = f.SetCellValue(summarySheet, "A3", "Points")
	_ = f.SetCellValue(summarySheet, "B3", len(rows))

	_ = f.SetCellValue(pointsSheet, "A1", "prediction_datetime")
	_ = f.SetCellValue(pointsSheet, "B1", "model")
	_ = f.SetCellValue(pointsSheet, "C1", "value")
	for i, row := range rows {
		line := i + 2
		_ = f.SetCellValue(pointsSheet, fmt.Sprintf("A%d", line), row.At.Format(timeLayout))
		_ = f.SetCellValue(pointsSheet, fmt.Sprintf("B%d", line), row.ModelID)
		_ = f.SetCellValue(pointsSheet, fmt.Sprintf("C%d", line), row.Value)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPredictionsPDF renders a minimal table of predictions.
func BuildPredictionsPDF(series forecasting.Series, rows []ExportRow) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Forecast: "+series.Name))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	if series.Description != "" {
		pdf.Cell(0, 6, tr(series.Description))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Points: %d", len(rows)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(70, 6, "Datetime", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Model", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(70, 6, row.At.Format(timeLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, strconv.FormatInt(row.ModelID, 10), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", row.Value), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
