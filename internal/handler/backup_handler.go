package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feldbach-gym/keyboard-loan-api/internal/service"
	appErrors "github.com/feldbach-gym/keyboard-loan-api/pkg/errors"
	"github.com/feldbach-gym/keyboard-loan-api/pkg/response"
)

// maxSnapshotSize caps uploaded backup documents at 10 MiB.
const maxSnapshotSize = 10 << 20

// BackupHandler exposes export downloads and the merge import.
type BackupHandler struct {
	exports *service.ExportService
	imports *service.ImportService
}

// NewBackupHandler constructs a backup handler.
func NewBackupHandler(exports *service.ExportService, imports *service.ImportService) *BackupHandler {
	return &BackupHandler{exports: exports, imports: imports}
}

// Workbook godoc
// @Summary Download the multi-sheet workbook backup
// @Tags Backup
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param year_id query string false "School year (defaults to active)"
// @Success 200 {file} binary
// @Router /export/workbook [get]
func (h *BackupHandler) Workbook(c *gin.Context) {
	file, err := h.exports.WorkbookBackup(c.Request.Context(), c.Query("year_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// Snapshot godoc
// @Summary Download the JSON snapshot backup
// @Tags Backup
// @Produce json
// @Param year_id query string false "School year (defaults to active)"
// @Success 200 {file} binary
// @Router /export/json [get]
func (h *BackupHandler) Snapshot(c *gin.Context) {
	file, err := h.exports.JSONBackup(c.Request.Context(), c.Query("year_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// Bundle godoc
// @Summary Download workbook and snapshot as one zip archive
// @Tags Backup
// @Produce application/zip
// @Param year_id query string false "School year (defaults to active)"
// @Success 200 {file} binary
// @Router /export/bundle [get]
func (h *BackupHandler) Bundle(c *gin.Context) {
	file, err := h.exports.BundleZip(c.Request.Context(), c.Query("year_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// PaymentList godoc
// @Summary Download the fee bookkeeping sheet
// @Tags Backup
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param year_id query string false "School year (defaults to active)"
// @Success 200 {file} binary
// @Router /export/payments [get]
func (h *BackupHandler) PaymentList(c *gin.Context) {
	file, err := h.exports.PaymentList(c.Request.Context(), c.Query("year_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// ClassList godoc
// @Summary Download one class roster
// @Tags Backup
// @Produce octet-stream
// @Param id path string true "Class ID"
// @Param format query string false "xlsx, csv or pdf" default(xlsx)
// @Success 200 {file} binary
// @Router /classes/{id}/export [get]
func (h *BackupHandler) ClassList(c *gin.Context) {
	file, err := h.exports.ClassList(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// Import godoc
// @Summary Merge a snapshot backup into the live data
// @Tags Backup
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Snapshot JSON document"
// @Success 200 {object} response.Envelope
// @Router /import [post]
func (h *BackupHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "snapshot file missing"))
		return
	}
	if fileHeader.Size > maxSnapshotSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "snapshot file too large"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable snapshot file"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxSnapshotSize))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable snapshot file"))
		return
	}

	report, err := h.imports.MergeJSON(c.Request.Context(), raw, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
