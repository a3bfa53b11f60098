package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ttpunch/AgentProject/ai/report"
	"github.com/ttpunch/AgentProject/connectors/mongodb"
)

// anomalyVibrationThreshold flags a sensor log as anomalous on the
// dashboard.
const anomalyVibrationThreshold = 0.8

// ListMachines returns the fleet metadata from the relational store.
func (s *APIV1Service) ListMachines(c echo.Context) error {
	table, err := s.DB.FetchQuery(c.Request().Context(), "SELECT * FROM machines")
	if err != nil {
		slog.Error("failed to fetch machines", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, table.Rows)
}

// MachineMetrics returns a machine's recent sensor logs in chronological
// order, timestamps rendered as strings.
func (s *APIV1Service) MachineMetrics(c echo.Context) error {
	machineID := c.Param("id")
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	pipeline := []map[string]any{
		{"$match": map[string]any{"machine_id": machineID}},
		{"$sort": map[string]any{"timestamp": -1}},
		{"$limit": limit},
		{"$sort": map[string]any{"timestamp": 1}},
	}
	rows, err := s.Docs.Aggregate(c.Request().Context(), "sensor_logs", pipeline)
	if err != nil {
		slog.Error("failed to fetch metrics", "machine", machineID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dropDocumentID(mongodb.NormalizeRows(rows)))
}

// dropDocumentID strips the internal Mongo document id from rows served to
// dashboard clients.
func dropDocumentID(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		delete(row, "_id")
	}
	return rows
}

// ListAnomalies returns the latest high-vibration sensor logs.
func (s *APIV1Service) ListAnomalies(c echo.Context) error {
	rows, err := s.fetchAnomalies(c)
	if err != nil {
		slog.Error("failed to fetch anomalies", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *APIV1Service) fetchAnomalies(c echo.Context) ([]map[string]any, error) {
	pipeline := []map[string]any{
		{"$match": map[string]any{"vibration": map[string]any{"$gt": anomalyVibrationThreshold}}},
		{"$sort": map[string]any{"timestamp": -1}},
		{"$limit": 20},
	}
	rows, err := s.Docs.Aggregate(c.Request().Context(), "sensor_logs", pipeline)
	if err != nil {
		return nil, err
	}
	return dropDocumentID(mongodb.NormalizeRows(rows)), nil
}

// MaintenanceReport grades the fleet's current state.
func (s *APIV1Service) MaintenanceReport(c echo.Context) error {
	machines, err := s.DB.FetchQuery(c.Request().Context(), "SELECT * FROM machines")
	if err != nil {
		slog.Error("failed to fetch machines for report", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	rows, err := s.fetchAnomalies(c)
	if err != nil {
		slog.Error("failed to fetch anomalies for report", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	anomalies := make([]report.Anomaly, 0, len(rows))
	for _, row := range rows {
		a := report.Anomaly{Metric: "vibration"}
		if id, ok := row["machine_id"].(string); ok {
			a.MachineID = id
		}
		if v, ok := row["vibration"].(float64); ok {
			a.Value = v
		}
		if ts, ok := row["timestamp"].(string); ok {
			a.Timestamp = ts
		}
		anomalies = append(anomalies, a)
	}

	return c.JSON(http.StatusOK, report.Generate(len(machines.Rows), anomalies))
}
