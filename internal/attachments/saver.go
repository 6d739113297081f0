// Package attachments stores files uploaded with a message on local disk and
// describes them as models.Attachment.
package attachments

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/config"
	"mindspace/backend/internal/models"

	"github.com/google/uuid"
)

const (
	defaultContentType = "application/octet-stream"
	// sniffLen is how much of a file http.DetectContentType looks at.
	sniffLen = 512
)

var contentTypeByExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".txt":  "text/plain",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Saver writes uploads into Dir. Saved files are served under URLPrefix.
type Saver struct {
	Dir       string
	URLPrefix string
	logger    *slog.Logger
}

func NewSaver(dir, urlPrefix string, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{Dir: dir, URLPrefix: strings.TrimSuffix(urlPrefix, "/"), logger: logger}
}

// SaveAll stores every file or none of them.
func (s *Saver) SaveAll(files []*multipart.FileHeader) ([]models.Attachment, error) {
	if len(files) > config.MaxAttachmentCount {
		return nil, apperr.Invalid("at most %d attachments allowed", config.MaxAttachmentCount)
	}
	for _, fh := range files {
		if fh.Size > config.MaxAttachmentSize {
			return nil, apperr.Invalid("%s exceeds %d bytes", sanitizeFilename(fh.Filename), config.MaxAttachmentSize)
		}
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	saved := make([]models.Attachment, 0, len(files))
	for _, fh := range files {
		att, err := s.save(fh)
		if err != nil {
			s.Remove(saved)
			return nil, err
		}
		saved = append(saved, att)
	}
	return saved, nil
}

// Remove deletes previously saved files, e.g. when the message could not be stored.
func (s *Saver) Remove(atts []models.Attachment) {
	for _, att := range atts {
		name := path.Base(att.Path)
		if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove attachment", "file", name, "error", err)
		}
	}
}

func (s *Saver) save(fh *multipart.FileHeader) (models.Attachment, error) {
	original := sanitizeFilename(fh.Filename)
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(original))

	src, err := fh.Open()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open %s: %w", original, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.Dir, stored))
	if err != nil {
		return models.Attachment{}, fmt.Errorf("create %s: %w", stored, err)
	}
	head := make([]byte, sniffLen)
	hn, err := io.ReadFull(src, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		dst.Close()
		os.Remove(filepath.Join(s.Dir, stored))
		return models.Attachment{}, fmt.Errorf("read %s: %w", original, err)
	}
	head = head[:hn]

	n, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), src))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(s.Dir, stored))
		return models.Attachment{}, fmt.Errorf("write %s: %w", stored, err)
	}

	return models.Attachment{
		Filename: original,
		Path:     s.URLPrefix + "/" + stored,
		MimeType: contentType(head, fh),
		Size:     n,
	}, nil
}

// contentType prefers what the bytes look like over what the file is called,
// and both over what the client declared.
func contentType(head []byte, fh *multipart.FileHeader) string {
	if len(head) > 0 {
		if sniffed := http.DetectContentType(head); sniffed != defaultContentType {
			return sniffed
		}
	}
	if ct, ok := contentTypeByExt[strings.ToLower(filepath.Ext(fh.Filename))]; ok {
		return ct
	}
	if ct := normalizeMIME(fh.Header.Get("Content-Type")); ct != "" {
		return ct
	}
	return defaultContentType
}

func normalizeMIME(mime string) string {
	if i := strings.Index(mime, ";"); i != -1 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func sanitizeFilename(filename string) string {
	clean := filepath.Base(filepath.Clean(filename))
	clean = strings.ReplaceAll(clean, "/", "_")
	clean = strings.ReplaceAll(clean, "\\", "_")
	if clean == "." || clean == ".." || clean == "" {
		return "unnamed"
	}
	return clean
}
