package llm

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxDocumentBytes bounds the source documents sent inline to a model.
const maxDocumentBytes = 20 << 20

// document is a source file read for question generation.
type document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// IsText reports whether the document can be placed directly into a prompt.
func (d document) IsText() bool {
	return strings.HasPrefix(d.MIMEType, "text/") ||
		d.MIMEType == "application/json" ||
		d.MIMEType == "application/yaml"
}

func readDocument(path string) (document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return document{}, fmt.Errorf("source document: %w", err)
	}
	if info.Size() > maxDocumentBytes {
		return document{}, fmt.Errorf("source document %s is %d bytes, limit is %d", path, info.Size(), maxDocumentBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, fmt.Errorf("source document: %w", err)
	}
	return document{
		Name:     filepath.Base(path),
		MIMEType: detectMIME(path, data),
		Data:     data,
	}, nil
}

func detectMIME(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".yaml", ".yml":
		return "application/yaml"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
	}
	t := http.DetectContentType(data)
	if base, _, err := mime.ParseMediaType(t); err == nil {
		if base == "application/octet-stream" && utf8.Valid(data) {
			return "text/plain"
		}
		return base
	}
	return "application/octet-stream"
}
