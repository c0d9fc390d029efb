package web

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/datalab/internal/core"
	"github.com/JonMunkholm/datalab/internal/logging"
	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/JonMunkholm/datalab/internal/store"
)

// maxFormMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const maxFormMemory = 32 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// uploadDeadlineSlack is added to the upload wait and timeout when
// extending the connection deadlines of an upload request.
const uploadDeadlineSlack = 30 * time.Second

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Message string `json:"message"`
	core.UploadSummary
}

// ProductResponse is one record as served by the API. Price keeps its two
// decimal places and dates are plain calendar dates.
type ProductResponse struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     string    `json:"price"`
	Quantity  int64     `json:"quantity"`
	TxDate    string    `json:"tx_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductListResponse wraps a filtered listing.
type ProductListResponse struct {
	Count    int               `json:"count"`
	Products []ProductResponse `json:"products"`
}

func toProductResponse(rec product.Record) ProductResponse {
	return ProductResponse{
		ID:        rec.ID,
		SKU:       rec.SKU,
		Name:      rec.Name,
		Category:  rec.Category,
		Price:     rec.Price.StringFixed(product.PricePlaces),
		Quantity:  rec.Quantity,
		TxDate:    rec.TxDate.Format(product.DateLayout),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// handleUpload accepts one or more "file" parts and an optional
// "sheet_name" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.extendUploadDeadlines(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(min(s.cfg.Upload.MaxFileSize, maxFormMemory)); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %w", errInvalidForm, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		respondError(w, r, core.ErrNoFiles, http.StatusBadRequest)
		return
	}

	files, closeAll, err := openParts(headers)
	defer closeAll()
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sheet := strings.TrimSpace(r.FormValue("sheet_name"))
	ctx := withRequestMetadata(r.Context(), r)

	summary, err := s.service.Upload(ctx, files, sheet)
	if err != nil {
		if errors.Is(err, core.ErrTooManyUploads) {
			w.Header().Set("Retry-After", "30")
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:       summary.Message(),
		UploadSummary: summary,
	})
}

// extendUploadDeadlines lets an upload outlive the server-wide read and
// write timeouts: the body may take long to arrive and the batch may wait
// for a slot and then run for up to the upload timeout.
func (s *Server) extendUploadDeadlines(w http.ResponseWriter, r *http.Request) {
	deadline := time.Now().Add(s.cfg.Upload.MaxWaitTime + s.cfg.Upload.Timeout + uploadDeadlineSlack)
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.FromContext(r.Context()).Warn("extend read deadline", "error", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.FromContext(r.Context()).Warn("extend write deadline", "error", err)
	}
}

// openParts opens every uploaded part. closeAll is safe to call even when
// err is non-nil.
func openParts(headers []*multipart.FileHeader) ([]core.UploadFile, func(), error) {
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]core.UploadFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open %s: %w", h.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, core.UploadFile{
			Name:   filepath.Base(h.Filename),
			Reader: f,
		})
	}
	return files, closeAll, nil
}

// handleListProducts serves records filtered by date_from, date_to,
// category and q, newest transaction first.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	records, err := s.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	resp := ProductListResponse{
		Count:    len(records),
		Products: make([]ProductResponse, len(records)),
	}
	for i, rec := range records {
		resp.Products[i] = toProductResponse(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseFilter reads the listing query parameters. Blank values are ignored.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	var f store.Filter

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"date_from", &f.DateFrom},
		{"date_to", &f.DateTo},
	} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		t, err := time.Parse(product.DateLayout, v)
		if err != nil {
			return store.Filter{}, fmt.Errorf("%s: %w", p.name, errInvalidDate)
		}
		*p.dst = t
	}

	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return store.Filter{}, errInvalidDateRng
	}

	f.Category = strings.TrimSpace(q.Get("category"))
	f.Search = strings.TrimSpace(q.Get("q"))
	return f, nil
}

// handleExport writes a fresh XLSX export and sends it as an attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.service.Export(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.service.Dashboard(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// handleUploadStatus reports the upload limiter so clients can check for
// free slots before sending a large batch.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Limiter().Status())
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Store   string                   `json:"store"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Store:   "ok",
		Uploads: s.service.Limiter().Status(),
	}
	status := http.StatusOK

	if err := s.service.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Store = core.MapError(err).Message
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
