package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/batch"
	"github.com/JakeFAU/icon-harvester/internal/icons"
)

// Multipart parts beyond this spill to temporary files.
const multipartMemory = 8 << 20

var csvContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true,
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("multipart cleanup failed", zap.Error(err))
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close() //nolint:errcheck // read-only multipart file

	if !isCSV(header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "Only CSV files are allowed")
		return
	}

	words, err := batch.ParseWords(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid CSV: %v", err))
		return
	}
	sourceConfig := r.FormValue("baseUrl")

	var archive bytes.Buffer
	report, err := s.harvester.Harvest(r.Context(), words, sourceConfig, &archive)
	if err != nil {
		s.logger.Error("harvest failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Int("words", len(words)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to build icon archive")
		return
	}

	if err := s.setReportHeaders(w.Header(), report, archive.Bytes()); err != nil {
		s.logger.Error("report headers failed", zap.String("batch_id", report.BatchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to build icon archive")
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive.Bytes()); err != nil {
		s.logger.Warn("archive write failed", zap.String("batch_id", report.BatchID), zap.Error(err))
	}
}

func (s *Server) setReportHeaders(h http.Header, report batch.Report, archive []byte) error {
	errs := report.Errors
	if errs == nil {
		errs = []icons.WordError{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode batch report: %w", err)
	}
	digest, err := s.hasher.Hash(archive)
	if err != nil {
		return fmt.Errorf("hash archive: %w", err)
	}
	filename := fmt.Sprintf("icons-%d.zip", s.clock.Now().UnixMilli())

	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", "attachment; filename="+filename)
	h.Set("Content-Length", strconv.Itoa(len(archive)))
	h.Set("X-Batch-ID", report.BatchID)
	h.Set("X-Processed-Words", strconv.Itoa(report.Processed))
	h.Set("X-Failed-Words", strconv.Itoa(report.Failed()))
	h.Set("X-Batch-Report", base64.StdEncoding.EncodeToString(encoded))
	h.Set("X-Content-SHA256", digest)
	return nil
}

func isCSV(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return csvContentTypes[mediaType]
}
