package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
)

const multipartMemoryBytes = 8 << 20

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.Create(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.View(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Close(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) selectDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadMaxBytes+multipartMemoryBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("file exceeds %d bytes", rt.uploadMaxBytes),
				Kind:  "invalid_input",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "multipart field 'file' is required",
			Kind:  "invalid_input",
		})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, rt.uploadMaxBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read upload: " + err.Error(), Kind: "invalid_input"})
		return
	}
	if int64(len(content)) > rt.uploadMaxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("file exceeds %d bytes", rt.uploadMaxBytes),
			Kind:  "invalid_input",
		})
		return
	}

	doc := domain.Document{
		Filename:   fileHeader.Filename,
		MimeType:   uploadMimeType(fileHeader.Header.Get("Content-Type"), content),
		Content:    content,
		SelectedAt: time.Now().UTC(),
	}
	view, err := rt.sessions.SelectDocument(r.Context(), r.PathValue("id"), doc)
	if err != nil {
		writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// uploadMimeType trusts the declared part type unless it is missing or generic.
func uploadMimeType(declared string, content []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(content) == 0 {
		return "application/octet-stream"
	}
	detected := http.DetectContentType(content)
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	return detected
}

func (rt *Router) previewDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.sessions.Preview(r.Context(), r.PathValue("id"))
	if err != nil {
		if domain.IsKind(err, domain.ErrMissingInput) || domain.IsKind(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: domain.KindName(err)})
			return
		}
		writeError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", doc.PreviewMimeType())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func (rt *Router) setDocumentType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentType string `json:"document_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Kind: "invalid_input"})
		return
	}
	hint, err := domain.ParseDocumentTypeHint(req.DocumentType)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	view, err := rt.sessions.SetDocumentType(r.Context(), r.PathValue("id"), hint)
	if err != nil {
		writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) requestExtraction(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.RequestExtraction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) editField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Kind: "invalid_input"})
		return
	}

	view, err := rt.sessions.EditField(r.Context(), r.PathValue("id"), req.Label, req.Value)
	if err != nil {
		writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) requestVerification(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.RequestVerification(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) exportSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := rt.sessions.View(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if rt.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "export is not configured", Kind: "internal"})
		return
	}

	data, err := rt.exporter.Export(view)
	if err != nil {
		rt.logger.Error("export_failed", "session_id", id, "error", err)
		writeError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", rt.exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
