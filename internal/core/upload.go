package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/datalab/internal/logging"
	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/JonMunkholm/datalab/internal/tabular"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var (
	// ErrNoFiles is returned when an upload carries no files at all.
	ErrNoFiles = errors.New("no file provided")

	// ErrNoReadableFiles is returned when every file of a batch failed to
	// read. The individual read errors are joined onto it.
	ErrNoReadableFiles = errors.New("no readable files in upload")

	// ErrSaveUpload is returned when the raw copy of an upload cannot be
	// written. It stops the batch; the file itself may be fine.
	ErrSaveUpload = errors.New("save upload copy")
)

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// FileResult reports how one file of a batch went.
type FileResult struct {
	Name      string `json:"name"`
	Checksum  string `json:"checksum,omitempty"` // xxhash64, hex
	Bytes     int64  `json:"bytes"`
	Submitted int    `json:"rows_submitted"`
	Admitted  int    `json:"rows_admitted"`
	Error     string `json:"error,omitempty"`
}

// UploadSummary is the outcome of an upload batch.
type UploadSummary struct {
	BatchID        string       `json:"batch_id"`
	FilesProcessed int          `json:"files_processed"`
	FilesFailed    int          `json:"files_failed"`
	RowsSubmitted  int          `json:"rows_submitted"`
	RowsAdmitted   int          `json:"rows_admitted"`
	Files          []FileResult `json:"files"`
}

// Message renders the summary as a one-line confirmation.
func (s UploadSummary) Message() string {
	msg := fmt.Sprintf("Uploaded %d file(s), %d total rows", s.FilesProcessed, s.RowsAdmitted)
	if s.FilesFailed > 0 {
		msg += fmt.Sprintf(", %d file(s) skipped", s.FilesFailed)
	}
	return msg
}

// Upload reads, normalizes and upserts every file as one batch.
//
// A file that cannot be read is recorded in the summary and skipped. The
// call fails with ErrNoReadableFiles only if no file could be read. A store
// failure stops the batch; rows already written stay written.
//
// Returns ErrTooManyUploads if no upload slot frees up in time.
func (s *Service) Upload(ctx context.Context, files []UploadFile, sheet string) (UploadSummary, error) {
	if len(files) == 0 {
		return UploadSummary{}, ErrNoFiles
	}

	var summary UploadSummary
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()

		var err error
		summary, err = s.upload(ctx, files, sheet)
		return err
	})
	return summary, err
}

func (s *Service) upload(ctx context.Context, files []UploadFile, sheet string) (UploadSummary, error) {
	summary := UploadSummary{
		BatchID: uuid.NewString(),
		Files:   make([]FileResult, 0, len(files)),
	}
	logger := logging.WithFields(ctx,
		"batch_id", summary.BatchID,
		"client_ip", ClientIPFromContext(ctx),
		"user_agent", UserAgentFromContext(ctx),
	)
	start := time.Now()
	logger.Info("upload started", "files", len(files), "sheet", sheet)

	var readErrs []error
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := FileResult{Name: f.Name}
		rows, err := s.readUpload(f, sheet, uploadCopyName(summary.BatchID, i, f.Name), &result)
		if errors.Is(err, ErrSaveUpload) {
			result.Error = FormatUserError(err)
			summary.Files = append(summary.Files, result)
			logger.Error("upload aborted", "file", f.Name, "error", err)
			return summary, err
		}
		if err != nil {
			result.Error = FormatUserError(err)
			summary.FilesFailed++
			summary.Files = append(summary.Files, result)
			readErrs = append(readErrs, err)
			logger.Warn("skipping unreadable file", "file", f.Name, "error", err)
			continue
		}

		normalized := s.normalizer.Normalize(rows)
		result.Submitted = normalized.Submitted
		summary.FilesProcessed++
		summary.RowsSubmitted += normalized.Submitted

		for _, row := range normalized.Rows {
			if err := s.store.Upsert(ctx, row); err != nil {
				summary.Files = append(summary.Files, result)
				logger.Error("upload aborted",
					"file", f.Name,
					"sku", row.SKU,
					"rows_admitted", summary.RowsAdmitted,
					"error", err,
				)
				return summary, err
			}
			result.Admitted++
			summary.RowsAdmitted++
		}

		summary.Files = append(summary.Files, result)
		logger.Debug("file upserted",
			"file", f.Name,
			"bytes", result.Bytes,
			"checksum", result.Checksum,
			"rows_submitted", result.Submitted,
			"rows_admitted", result.Admitted,
		)
	}

	if summary.FilesProcessed == 0 {
		return summary, fmt.Errorf("%w: %w", ErrNoReadableFiles, errors.Join(readErrs...))
	}

	logger.Info("upload completed",
		"files_processed", summary.FilesProcessed,
		"files_failed", summary.FilesFailed,
		"rows_submitted", summary.RowsSubmitted,
		"rows_admitted", summary.RowsAdmitted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// readUpload parses one file while hashing and counting it and, when an
// upload directory is configured, keeping a copy of the raw bytes under
// copyName. The checksum covers the whole file even if the parser stops
// early. Checksum and byte count are recorded on result.
func (s *Service) readUpload(f UploadFile, sheet, copyName string, result *FileResult) ([]product.RawRow, error) {
	if f.Reader == nil {
		return nil, &tabular.ReadError{File: f.Name, Err: errors.New("empty file")}
	}

	digest := xxhash.New()
	counter := &byteCounter{}
	sink := io.MultiWriter(digest, counter)

	if s.uploadDir != "" {
		copyFile, err := s.createUploadCopy(copyName)
		if err != nil {
			return nil, err
		}
		defer copyFile.Close()
		sink = io.MultiWriter(digest, counter, saveWriter{copyFile})
	}

	src := io.TeeReader(f.Reader, sink)
	rows, readErr := tabular.Read(src, f.Name, sheet)

	// Drain what the parser left unread so the checksum and copy are whole.
	if _, err := io.Copy(io.Discard, src); err != nil && readErr == nil {
		readErr = &tabular.ReadError{File: f.Name, Err: err}
	}

	result.Checksum = hex.EncodeToString(digest.Sum(nil))
	result.Bytes = counter.n
	return rows, readErr
}

// uploadCopyName is the raw copy's file name. The batch index keeps two files
// with the same name apart.
func uploadCopyName(batchID string, index int, name string) string {
	return fmt.Sprintf("%s_%d_%s", batchID, index, filepath.Base(name))
}

func (s *Service) createUploadCopy(name string) (*os.File, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create upload dir: %w", ErrSaveUpload, err)
	}
	f, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveUpload, err)
	}
	return f, nil
}

// saveWriter marks write failures of the raw copy so they are not taken
// for unreadable input.
type saveWriter struct {
	w io.Writer
}

func (s saveWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSaveUpload, err)
	}
	return n, err
}

type byteCounter struct {
	n int64
}

func (c *byteCounter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
