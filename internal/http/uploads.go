package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/logging"
	"github.com/mrlokans/bookshelf/internal/upload"
	"github.com/mrlokans/bookshelf/internal/workspace"
)

// multipartOverhead is allowed on top of the file itself for boundaries and
// the other form fields.
const multipartOverhead = 1 << 20

// UploadsController drives the thumbnail upload slot of an open form.
type UploadsController struct {
	auditor  Auditor
	maxBytes int64
	logger   *zap.Logger
}

func NewUploadsController(auditor Auditor, maxBytes int64, logger *zap.Logger) *UploadsController {
	return &UploadsController{
		auditor:  auditor,
		maxBytes: maxBytes,
		logger:   logging.OrNop(logger),
	}
}

func slotData(c *gin.Context, fs *workspace.FormSession) gin.H {
	data := pageData(c, "")
	data["FormKey"] = fs.Key
	data["Slot"] = fs.Slot.Snapshot()
	return data
}

// formSession resolves the :form route parameter.
func formSession(c *gin.Context) (*workspace.FormSession, bool) {
	fs, ok := currentWorkspace(c).Form(c.Param("form"))
	if !ok {
		respondError(c, http.StatusNotFound, "form not found")
		return nil, false
	}
	return fs, true
}

// Upload accepts a file from the picker ("file") or a drop ("files", only
// the first is used) and uploads it to the image host.
// POST /ui/forms/:form/upload
func (uc *UploadsController) Upload(c *gin.Context) {
	fs, ok := formSession(c)
	if !ok {
		return
	}
	ws := currentWorkspace(c)

	if uc.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, uc.maxBytes+multipartOverhead)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondBadRequest(c, "expected a multipart upload")
		return
	}

	headers, dropped := form.File["file"], false
	if len(headers) == 0 {
		headers, dropped = form.File["files"], true
	}
	if !dropped && len(headers) == 0 {
		respondBadRequest(c, "no file provided")
		return
	}
	if uc.maxBytes > 0 && len(headers) > 0 && headers[0].Size > uc.maxBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	files, closeAll, err := openFiles(headers)
	if err != nil {
		respondBadRequest(c, "unreadable upload")
		return
	}
	defer closeAll()

	ctx := c.Request.Context()
	if dropped {
		err = fs.Slot.Drop(ctx, files)
	} else {
		err = fs.Slot.Select(ctx, files[0])
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, upload.ErrBusy):
		status = http.StatusConflict
	case err != nil:
		// The slot already shows the failure; the auditor hears about it via the slot hook.
		status = http.StatusBadGateway
	case len(files) > 0:
		snap := fs.Slot.Snapshot()
		if snap.State != upload.StatePreviewing {
			// Cleared while the upload was in flight
			break
		}
		uc.logger.Info("thumbnail uploaded",
			zap.String("workspace_id", ws.ID), zap.String("file", files[0].Name), zap.String("url", snap.URL))
		if uc.auditor != nil {
			uc.auditor.LogUpload(ws.ID, files[0].Name, snap.URL)
		}
	}
	respondHTMXOrJSON(c, status, "upload-slot", slotData(c, fs))
}

// openFiles opens every uploaded part. The returned func closes them all.
func openFiles(headers []*multipart.FileHeader) ([]upload.File, func(), error) {
	files := make([]upload.File, 0, len(headers))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", h.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, upload.File{Name: h.Filename, Content: f})
	}
	return files, closeAll, nil
}

// Drag records the drag-hover state of the drop zone.
// POST /ui/forms/:form/drag
func (uc *UploadsController) Drag(c *gin.Context) {
	fs, ok := formSession(c)
	if !ok {
		return
	}
	switch c.PostForm("event") {
	case "enter":
		fs.Slot.DragEnter()
	case "leave":
		fs.Slot.DragLeave()
	default:
		respondBadRequest(c, "event must be enter or leave")
		return
	}
	if isHTMXRequest(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, fs.Slot.Snapshot())
}

// Clear empties the slot.
// POST /ui/forms/:form/clear
func (uc *UploadsController) Clear(c *gin.Context) {
	fs, ok := formSession(c)
	if !ok {
		return
	}
	fs.Slot.Clear()
	respondHTMXOrJSON(c, http.StatusOK, "upload-slot", slotData(c, fs))
}

// Slot renders the slot state.
// GET /ui/forms/:form/slot
func (uc *UploadsController) Slot(c *gin.Context) {
	fs, ok := formSession(c)
	if !ok {
		return
	}
	respondHTMXOrJSON(c, http.StatusOK, "upload-slot", slotData(c, fs))
}
