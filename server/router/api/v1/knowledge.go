package v1

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// maxDocumentSize caps uploaded knowledge base documents at 10 MiB.
const maxDocumentSize = 10 << 20

// ListDocuments returns the distinct source names in the knowledge base.
func (s *APIV1Service) ListDocuments(c echo.Context) error {
	if s.Knowledge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge base is not configured")
	}
	sources, err := s.Knowledge.ListDocuments(c.Request().Context())
	if err != nil {
		slog.Error("failed to list documents", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sources == nil {
		sources = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": sources})
}

// UploadDocument indexes an uploaded text document into the knowledge base.
func (s *APIV1Service) UploadDocument(c echo.Context) error {
	if s.Knowledge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge base is not configured")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxDocumentSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "document exceeds the 10 MiB limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxDocumentSize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	chunks, err := s.Knowledge.AddDocument(c.Request().Context(), fileHeader.Filename, string(content))
	if err != nil {
		slog.Error("failed to index document", "source", fileHeader.Filename, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Document indexed successfully",
		"source":  fileHeader.Filename,
		"chunks":  chunks,
	})
}

// DeleteDocument removes every chunk indexed under the given source name.
func (s *APIV1Service) DeleteDocument(c echo.Context) error {
	if s.Knowledge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge base is not configured")
	}
	source := c.Param("source")
	if source == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source is required")
	}
	if err := s.Knowledge.DeleteDocument(c.Request().Context(), source); err != nil {
		slog.Error("failed to delete document", "source", source, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Document deleted", "source": source})
}

// VectorSample returns a truncated view of a few stored chunks so the
// embedding store can be inspected.
func (s *APIV1Service) VectorSample(c echo.Context) error {
	if s.Knowledge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge base is not configured")
	}
	samples, err := s.Knowledge.Sample(c.Request().Context())
	if err != nil {
		slog.Error("failed to sample vectors", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"samples": samples})
}
