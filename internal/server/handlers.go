package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/lease-intake/internal/batch"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

type errorResponse struct {
	Error string `json:"error"`
}

type finalizeResponse struct {
	Message string                   `json:"message"`
	Data    []staging.FinalizeStatus `json:"data"`
}

func (s *Server) fail(c *gin.Context, err error) {
	status := common.StatusOf(err)
	log := common.LoggerWithContext(c.Request.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		log.Error("http.request.failed", "path", c.FullPath(), "status", status, "error", err)
	} else {
		log.Warn("http.request.rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, errorResponse{Error: common.MessageOf(err)})
}

func fileOpener(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) { return fh.Open() }
}

// Upload handles POST /upload: repeated "file" parts paired by position with
// repeated "doc_types" values.
func (s *Server) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes())
	form, err := c.MultipartForm()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.logger.Warn("http.upload.too_large", "limit_bytes", tooLarge.Limit)
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("Upload exceeds %d MB", s.cfg.MaxUploadMB)})
		return
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingBoundary) {
		s.logger.Warn("http.upload.bad_form", "error", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "An error occurred while processing the files"})
		return
	}
	var files []*multipart.FileHeader
	var docTypes []string
	if form != nil {
		files = form.File["file"]
		docTypes = form.Value["doc_types"]
	}

	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No files provided"})
		return
	}
	if len(docTypes) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No file types (doc types) provided"})
		return
	}
	if len(files) != len(docTypes) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Number of files and doc types do not match"})
		return
	}

	reqs := make([]batch.Request, len(files))
	for i, fh := range files {
		reqs[i] = batch.Request{Name: fh.Filename, DocType: docTypes[i], Blob: fileOpener(fh)}
	}

	results, err := s.batches.RunBatch(c.Request.Context(), reqs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// Finalize handles POST /finalize.
func (s *Server) Finalize(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "An error occurred while finalizing the files"})
		return
	}
	entries, err := staging.ParseFinalizeRequest(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	statuses, err := s.records.Finalize(c.Request.Context(), entries)
	if err != nil {
		s.fail(c, err)
		return
	}
	if statuses == nil {
		statuses = []staging.FinalizeStatus{}
	}
	c.JSON(http.StatusOK, finalizeResponse{Message: "All files successfully saved", Data: statuses})
}

func (s *Server) ListDrafts(c *gin.Context) {
	drafts, err := s.records.ListDrafts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if drafts == nil {
		drafts = []staging.DraftRecord{}
	}
	c.JSON(http.StatusOK, drafts)
}

func (s *Server) GetDraft(c *gin.Context) {
	rec, err := s.records.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) DeleteDraft(c *gin.Context) {
	if err := s.records.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) GetFinal(c *gin.Context) {
	rec, err := s.records.GetFinal(c.Request.Context(), c.Param("filename"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) Search(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	hits, err := s.records.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(hits))
	for _, h := range hits {
		out = append(out, gin.H{"id": h.ID, "score": h.Score, "metadata": h.Metadata, "content": rawOrString(h.Content)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) Export(c *gin.Context) {
	b, err := s.exporter.ExportFinalizedXLSX(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="finalized.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", b)
}

func rawOrString(s string) any {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}
