package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPDF is returned by CreateSession for input that is not a PDF.
var ErrInvalidPDF = errors.New("invalid pdf")

// ErrFileTooLarge is returned by CreateSession when the PDF exceeds MaxPDFBytes.
var ErrFileTooLarge = errors.New("file too large")

// pdfMagic is the header every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// CreateSession stores an uploaded PDF and opens a session in the uploaded
// state. The PDF is inspected first, so unreadable files never get a session.
func (s *Service) CreateSession(ctx context.Context, filename string, r io.Reader) (*ExtractionSession, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxPDFBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.cfg.MaxPDFBytes)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return nil, fmt.Errorf("%w: %s is not a pdf", ErrInvalidPDF, filename)
	}

	info, err := s.pdf.Inspect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	id := uuid.New()
	sess := &ExtractionSession{
		ID:           id.String(),
		SessionID:    "extract-" + strings.ReplaceAll(id.String(), "-", "")[:8],
		PDFFilename:  cleanFilename(filename),
		PDFSizeBytes: int64(len(data)),
		PageCount:    info.PageCount,
		State:        StateUploaded,
		CurrentStep:  StepUploaded,
	}
	sess.PDFPath = sessionKey(sess, ArtifactOriginal)

	if _, err := s.objects.Put(ctx, sess.PDFPath, data, "application/pdf"); err != nil {
		return nil, &PersistenceError{Op: "storage put " + sess.PDFPath, Err: err}
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		if derr := s.objects.Delete(context.WithoutCancel(ctx), sess.PDFPath); derr != nil {
			s.sessionLogger(ctx, sess.ID, "").Warn("orphaned upload", "key", sess.PDFPath, "error", derr)
		}
		return nil, err
	}

	s.LogAudit(ctx, AuditLogParams{
		Action:    ActionSessionCreate,
		SessionID: sess.ID,
		To:        StateUploaded,
		Detail:    fmt.Sprintf("%s (%d bytes, %d pages)", sess.PDFFilename, sess.PDFSizeBytes, sess.PageCount),
	})
	s.sessionLogger(ctx, sess.ID, "").Info("session created",
		"handle", sess.SessionID,
		"filename", sess.PDFFilename,
		"size_bytes", sess.PDFSizeBytes,
		"pages", sess.PageCount,
	)
	return sess, nil
}

// cleanFilename keeps the base name of an uploaded file.
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "paper.pdf"
	}
	return name
}
