package pipeline

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mixforge/platform/core"
)

// maxMultipartMemory is the in-memory budget for parsing multipart forms;
// larger parts spill to temporary files.
const maxMultipartMemory = 10 << 20 // 10 MB

// FileSpec declares one expected multipart file field.
type FileSpec struct {
	Required         bool
	MaxSizeBytes     int64
	AllowedMimeTypes []string
}

// FileUpload is one extracted multipart file, fully read into memory.
type FileUpload struct {
	Field    string
	Filename string
	MimeType string
	Size     int64
	Content  []byte
}

// extractFiles pulls the declared file fields out of the multipart form.
// Absent optional fields yield no map entry; every violation maps to its
// own distinguished error.
func extractFiles(r *http.Request, specs map[string]FileSpec) (map[string]*FileUpload, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return nil, core.Validation("multipart form data expected")
	}
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, core.Validation("malformed multipart form data")
		}
	}

	out := make(map[string]*FileUpload, len(specs))
	for field, spec := range specs {
		header := formFile(r, field)
		if header == nil {
			if spec.Required {
				return nil, core.MissingFile(field)
			}
			continue
		}

		mimeType := partMimeType(header)
		if len(spec.AllowedMimeTypes) > 0 && !slices.Contains(spec.AllowedMimeTypes, mimeType) {
			return nil, core.InvalidFileType(field, mimeType)
		}
		if spec.MaxSizeBytes > 0 && header.Size > spec.MaxSizeBytes {
			return nil, core.FileTooLarge(field, spec.MaxSizeBytes)
		}

		content, err := readPart(header)
		if err != nil {
			return nil, err
		}

		out[field] = &FileUpload{
			Field:    field,
			Filename: header.Filename,
			MimeType: mimeType,
			Size:     header.Size,
			Content:  content,
		}
	}
	return out, nil
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil
	}
	return headers[0]
}

// partMimeType reads the part's declared Content-Type, falling back to the
// filename extension.
func partMimeType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	return mime.TypeByExtension(filepath.Ext(header.Filename))
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, errors.Join(core.Internal(), err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Join(core.Internal(), err)
	}
	return content, nil
}
