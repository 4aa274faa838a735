package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadExamFile reads an exam definition. Files ending in .json are parsed
// as JSON, anything else as YAML. Unknown fields are rejected.
func LoadExamFile(path string) (ExamFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExamFile{}, fmt.Errorf("read exam file: %w", err)
	}
	return ParseExamFile(data, path)
}

// ParseExamFile decodes data, choosing the format from the extension of path.
func ParseExamFile(data []byte, path string) (ExamFile, error) {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return parseJSONExam(data)
	}
	return parseYAMLExam(data)
}

func parseJSONExam(data []byte) (ExamFile, error) {
	var f ExamFile
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return ExamFile{}, fmt.Errorf("parse json: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return ExamFile{}, fmt.Errorf("parse json: multiple documents are not supported")
		}
		return ExamFile{}, fmt.Errorf("parse json: %w", err)
	}
	return f, nil
}

func parseYAMLExam(data []byte) (ExamFile, error) {
	var f ExamFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return ExamFile{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return ExamFile{}, fmt.Errorf("parse yaml: multiple documents are not supported")
		}
		return ExamFile{}, fmt.Errorf("parse yaml: %w", err)
	}
	return f, nil
}
