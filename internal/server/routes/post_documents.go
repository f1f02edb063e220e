package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/dochub/backend/internal/db"
	"github.com/OFFIS-RIT/dochub/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/dochub/backend/pkg/executor"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type documentParams struct {
	ID string `param:"id" validate:"required"`
}

type processResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	Accepted   bool   `json:"accepted"`
}

// ProcessDocumentHandler starts a pipeline run. A document that is already
// processing is left alone and reported with accepted=false.
func ProcessDocumentHandler(c echo.Context) error {
	params := new(documentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, processResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, processResponse{Message: "Invalid request params"})
	}

	exec := c.(*middleware.AppContext).App.Services.Executor
	accepted, err := exec.Trigger(c.Request().Context(), params.ID)
	if err != nil {
		if errors.Is(err, executor.ErrNotFound) {
			return c.JSON(http.StatusNotFound, processResponse{Message: "Document not found", DocumentID: params.ID})
		}
		logger.Error("Failed to trigger processing", "document", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, processResponse{Message: "Internal server error", DocumentID: params.ID})
	}

	msg := "Processing started"
	if !accepted {
		msg = "Document is already processing"
	}
	return c.JSON(http.StatusAccepted, processResponse{Message: msg, DocumentID: params.ID, Accepted: accepted})
}

func ReprocessDocumentHandler(c echo.Context) error {
	params := new(documentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, processResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, processResponse{Message: "Invalid request params"})
	}

	exec := c.(*middleware.AppContext).App.Services.Executor
	accepted, err := exec.Reprocess(c.Request().Context(), params.ID)
	switch {
	case errors.Is(err, executor.ErrNotFound):
		return c.JSON(http.StatusNotFound, processResponse{Message: "Document not found", DocumentID: params.ID})
	case errors.Is(err, executor.ErrNotReprocessable):
		return c.JSON(http.StatusConflict, processResponse{Message: err.Error(), DocumentID: params.ID})
	case err != nil:
		logger.Error("Failed to reprocess document", "document", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, processResponse{Message: "Internal server error", DocumentID: params.ID})
	}

	return c.JSON(http.StatusAccepted, processResponse{Message: "Reprocessing started", DocumentID: params.ID, Accepted: accepted})
}

// CreateDocumentHandler registers an uploaded file as a pending document.
func CreateDocumentHandler(c echo.Context) error {
	type createDocumentBody struct {
		Name     string `json:"name" validate:"required"`
		FilePath string `json:"file_path" validate:"required"`
		FolderID string `json:"folder_id"`
		MimeType string `json:"mime_type"`
		Process  bool   `json:"process"`
	}

	type createDocumentResponse struct {
		Message  string `json:"message"`
		Document any    `json:"document,omitempty"`
		Accepted bool   `json:"accepted"`
	}

	body := new(createDocumentBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(body); err != nil {
		return c.JSON(http.StatusBadRequest, createDocumentResponse{Message: "Invalid request body"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, createDocumentResponse{Message: "Unauthorized"})
	}

	services := c.(*middleware.AppContext).App.Services
	if services.Queries == nil {
		return c.JSON(http.StatusServiceUnavailable, createDocumentResponse{Message: "Document registration needs a database"})
	}

	id, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createDocumentResponse{Message: "Internal server error"})
	}

	ctx := c.Request().Context()
	doc, err := services.Queries.CreateDocument(ctx, db.CreateDocumentParams{
		ID:       id,
		Name:     body.Name,
		FilePath: body.FilePath,
		FolderID: body.FolderID,
		UserID:   user.UserID,
		MimeType: body.MimeType,
	})
	if err != nil {
		logger.Error("Failed to create document", "err", err)
		return c.JSON(http.StatusInternalServerError, createDocumentResponse{Message: "Internal server error"})
	}

	accepted := false
	if body.Process {
		accepted, err = services.Executor.Trigger(ctx, doc.ID)
		if err != nil {
			logger.Error("Failed to trigger processing", "document", doc.ID, "err", err)
		}
	}

	return c.JSON(http.StatusCreated, createDocumentResponse{Message: "Document created", Document: doc, Accepted: accepted})
}
