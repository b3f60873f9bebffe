package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ktsuji/homestock/internal/scanning"
)

// IDGenerator generates identifiers for stored uploads.
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator stamps uploads with UnixNano, matching the
// timestamp-prefixed filenames the upload directory has always used.
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// Upload identifies a stored image: ID is the filename stem, reused as the
// key for the transcription artifact.
type Upload struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Service orchestrates the transcription pipeline: store the image, send it
// to the vision model, extract the JSON object from the reply, and persist
// the parsed result as an artifact next to (but not in) the image directory.
type Service struct {
	images      Storage
	artifacts   Storage
	scanner     scanning.Scanner
	idGenerator IDGenerator
}

// NewService creates a Service with the default ID generator.
func NewService(images, artifacts Storage, scanner scanning.Scanner) *Service {
	return &Service{
		images:      images,
		artifacts:   artifacts,
		scanner:     scanner,
		idGenerator: &defaultIDGenerator{},
	}
}

// NewServiceWithDeps creates a Service with a custom ID generator for testing.
func NewServiceWithDeps(images, artifacts Storage, scanner scanning.Scanner, idGen IDGenerator) *Service {
	return &Service{
		images:      images,
		artifacts:   artifacts,
		scanner:     scanner,
		idGenerator: idGen,
	}
}

var (
	filenameStripRe = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)
	spaceRunRe      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated upload names before they hit
// the filesystem.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	base = spaceRunRe.ReplaceAllString(base, "_")
	base = filenameStripRe.ReplaceAllString(base, "")
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "image"
	}
	return base + ext
}

// SaveUpload stores an uploaded image and returns its generated identity.
func (s *Service) SaveUpload(filename string, data []byte) (*Upload, error) {
	stored := fmt.Sprintf("%s-%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	if _, err := s.images.Save(stored, data); err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}
	return &Upload{
		ID:       strings.TrimSuffix(stored, filepath.Ext(stored)),
		Filename: stored,
	}, nil
}

// GetImage reads back a stored upload.
func (s *Service) GetImage(filename string) ([]byte, error) {
	return s.images.Get(filename)
}

// GetArtifact reads back a transcription artifact by upload ID.
func (s *Service) GetArtifact(id string) ([]byte, error) {
	return s.artifacts.Get(id + ".json")
}

// Transcribe runs the full pipeline for one upload. The credential check
// happens before anything else so a misconfigured deployment fails without a
// single provider call. The image is kept on disk whatever the scan outcome;
// the JSON artifact is written only when extraction succeeds, and an
// artifact-write failure degrades to Saved=false rather than failing the
// request.
func (s *Service) Transcribe(ctx context.Context, filename string, data []byte, contentType string) (*Transcription, error) {
	if s.scanner == nil || !s.scanner.Configured() {
		return nil, scanning.ErrMissingCredential
	}

	upload, err := s.SaveUpload(filename, data)
	if err != nil {
		return nil, err
	}

	text, err := s.scanner.Scan(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan image",
			"filename", upload.Filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning image: %w", err)
	}

	parsed, err := scanning.ExtractObject(text)
	if err != nil {
		slog.Error("Model reply was unparsable", "filename", upload.Filename, "error", err)
		return nil, err
	}

	saved := true
	if _, err := s.artifacts.Save(upload.ID+".json", parsed); err != nil {
		slog.Error("Failed to write transcription artifact", "id", upload.ID, "error", err)
		saved = false
	}

	result := &Transcription{
		ID:       upload.ID,
		Filename: upload.Filename,
		Text:     text,
		Parsed:   parsed,
		Saved:    saved,
	}

	var receipt Receipt
	if jsonErr := json.Unmarshal(parsed, &receipt); jsonErr == nil {
		result.Receipt = &receipt
	}

	return result, nil
}

// Configured reports whether the scanner has a usable credential.
func (s *Service) Configured() bool {
	return s.scanner != nil && s.scanner.Configured()
}
