package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/dochub/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/executor"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
)

func GetDocumentStatusHandler(c echo.Context) error {
	params := new(documentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	exec := c.(*middleware.AppContext).App.Services.Executor
	status, err := exec.Status(c.Request().Context(), params.ID)
	if err != nil {
		if errors.Is(err, executor.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Document not found"})
		}
		logger.Error("Failed to get document status", "document", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, status)
}

func GetDocumentLogsHandler(c echo.Context) error {
	type getLogsResponse struct {
		DocumentID string                    `json:"document_id"`
		Entries    []common.PipelineLogEntry `json:"entries"`
	}

	params := new(documentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	logs := c.(*middleware.AppContext).App.Services.Logs
	entries, err := logs.GetLog(c.Request().Context(), params.ID)
	if err != nil {
		logger.Error("Failed to read pipeline log", "document", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if entries == nil {
		entries = []common.PipelineLogEntry{}
	}

	return c.JSON(http.StatusOK, getLogsResponse{DocumentID: params.ID, Entries: entries})
}

// GetDocumentArtifactsHandler lists the saved intermediate outputs of one
// stage, or of every stage when :stage is "all".
func GetDocumentArtifactsHandler(c echo.Context) error {
	type getArtifactsParams struct {
		ID    string `param:"id" validate:"required"`
		Stage string `param:"stage" validate:"required"`
	}

	type getArtifactsResponse struct {
		DocumentID string            `json:"document_id"`
		Stage      string            `json:"stage"`
		Artifacts  []common.Artifact `json:"artifacts"`
	}

	params := new(getArtifactsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	stage := params.Stage
	if stage == "all" {
		stage = ""
	}

	logs := c.(*middleware.AppContext).App.Services.Logs
	artifacts, err := logs.GetArtifacts(c.Request().Context(), params.ID, stage)
	if err != nil {
		logger.Error("Failed to list artifacts", "document", params.ID, "stage", params.Stage, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if artifacts == nil {
		artifacts = []common.Artifact{}
	}

	return c.JSON(http.StatusOK, getArtifactsResponse{DocumentID: params.ID, Stage: params.Stage, Artifacts: artifacts})
}
