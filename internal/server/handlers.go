package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ktsuji/homestock/internal/inventory"
	"github.com/ktsuji/homestock/internal/scanning"
)

// maxUploadSize bounds multipart parsing; phone photos can be large.
const maxUploadSize = int64(50 << 20)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeInventoryError maps the inventory failure taxonomy onto HTTP codes.
func writeInventoryError(w http.ResponseWriter, err error) {
	var verr *inventory.ValidationError
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Reason)
	default:
		slog.Error("Internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// readImageUpload pulls the multipart "image" field and determines its
// content type, falling back to the filename extension.
func readImageUpload(w http.ResponseWriter, r *http.Request) (string, []byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "no image uploaded")
		return "", nil, "", false
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image uploaded")
		return "", nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "error reading file")
		return "", nil, "", false
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "image/png"
		}
	}

	return header.Filename, data, contentType, true
}

// handleParseImage stores an uploaded image and returns its generated
// identity. No transcription happens here.
func (s *Server) handleParseImage(w http.ResponseWriter, r *http.Request) {
	filename, data, _, ok := readImageUpload(w, r)
	if !ok {
		return
	}

	upload, err := s.transcriber.SaveUpload(filename, data)
	if err != nil {
		slog.Error("Error saving upload", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "error saving image")
		return
	}

	writeJSON(w, http.StatusOK, upload)
}

// handleTranscribeImage runs the full transcription pipeline on an upload.
func (s *Server) handleTranscribeImage(w http.ResponseWriter, r *http.Request) {
	filename, data, contentType, ok := readImageUpload(w, r)
	if !ok {
		return
	}

	result, err := s.transcriber.Transcribe(r.Context(), filename, data, contentType)
	if err != nil {
		var unparsable *scanning.UnparsableError
		var provider *scanning.ProviderError
		switch {
		case errors.Is(err, scanning.ErrMissingCredential):
			writeError(w, http.StatusBadRequest, "missing credential")
		case errors.As(err, &unparsable):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":  "genai_unparsable",
				"detail": map[string]any{"text": unparsable.Text},
			})
		case errors.As(err, &provider):
			slog.Error("Vision provider error", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "genai_failed",
				"detail": map[string]any{
					"message":  provider.Error(),
					"code":     provider.Code,
					"response": provider.Body,
				},
			})
		default:
			slog.Error("Error transcribing image", "filename", filename, "error", err)
			writeError(w, http.StatusInternalServerError, "error transcribing image")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source": "genai",
		"id":     result.ID,
		"text":   result.Text,
		"parsed": result.Parsed,
		"saved":  result.Saved,
	})
}

// handleGetUpload serves a stored image back.
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	data, err := s.transcriber.GetImage(r.PathValue("filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleGetArtifact serves a transcription artifact by upload ID.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	data, err := s.transcriber.GetArtifact(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.inventory.ListItems()
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.inventory.CreateItem(&item)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.inventory.GetItem(r.PathValue("id"))
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item.ID = r.PathValue("id")

	updated, err := s.inventory.UpdateItem(&item)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.DeleteItem(r.PathValue("id")); err != nil {
		writeInventoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta    int    `json:"delta"`
		UserName string `json:"user_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.inventory.AdjustStock(r.PathValue("id"), req.UserName, req.Delta)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName string     `json:"user_name"`
		Quantity int        `json:"quantity"`
		DueDate  *time.Time `json:"due_date"`
		Memo     string     `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	log, err := s.inventory.Borrow(r.PathValue("id"), req.UserName, req.Quantity, req.DueDate, req.Memo)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName     string    `json:"user_name"`
		Quantity     int       `json:"quantity"`
		ReservedDate time.Time `json:"reserved_date"`
		Memo         string    `json:"memo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	log, err := s.inventory.Reserve(r.PathValue("id"), req.UserName, req.Quantity, req.ReservedDate, req.Memo)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	var (
		logs []*inventory.LendingLog
		err  error
	)
	if r.URL.Query().Get("open") == "true" {
		logs, err = s.inventory.OpenLogs(r.PathValue("id"))
	} else {
		logs, err = s.inventory.ListLogs(r.PathValue("id"))
	}
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	log, err := s.inventory.Return(r.PathValue("id"))
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	log, err := s.inventory.ConvertReservation(r.PathValue("id"))
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.CancelReservation(r.PathValue("id")); err != nil {
		writeInventoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.inventory.ListTags()
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := s.inventory.CreateTag(req.Name)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.DeleteTag(r.PathValue("id")); err != nil {
		writeInventoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.inventory.ListChat()
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName string `json:"user_name"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.inventory.PostChat(req.UserName, req.Text)
	if err != nil {
		writeInventoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
