package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/examgen/internal/handler"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

const examYAML = `title: Channels
access_type: public
questions:
  - type: Radio
    variations:
      - text: Which keyword starts a goroutine?
        options: [go, run, spawn]
        correct_answers: [go]
  - type: text
    variations:
      - text: What does an unbuffered send wait for?
        correct_answers: [a receiver]
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("examgen %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestImportAndExport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "examgen.db")
	examPath := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(examPath, []byte(examYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out := execute(t, "import", examPath, "--db", dbPath, "--creator", "t1")
	if !strings.Contains(out, `Exam "Channels" imported as`) {
		t.Errorf("import output = %q", out)
	}
	out = execute(t, "import", examPath, "--db", dbPath, "--creator", "t1")
	if !strings.Contains(out, "unchanged since the last import") {
		t.Errorf("second import output = %q", out)
	}

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	exams, err := s.ListExamsByCreator(context.Background(), "t1")
	s.Close()
	if err != nil {
		t.Fatalf("ListExamsByCreator: %v", err)
	}
	if len(exams) != 1 || exams[0].Status != model.ExamReady {
		t.Fatalf("exams = %+v", exams)
	}

	exportPath := filepath.Join(dir, "results.json")
	execute(t, "export", "--db", dbPath, "--creator", "t1", "--exam-id", exams[0].ID, "-o", exportPath)
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var export model.ExamExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if export.ExamID != exams[0].ID || export.NumQuestions != 2 || len(export.Results) != 0 {
		t.Errorf("export = %+v", export)
	}
}

func TestImportLocalizedOutput(t *testing.T) {
	dir := t.TempDir()
	examPath := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(examPath, []byte(examYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out := execute(t, "import", examPath, "--db", filepath.Join(dir, "x.db"), "--creator", "t1", "--lang", "ru")
	if !strings.Contains(out, "Экзамен «Channels» импортирован") {
		t.Errorf("import output = %q", out)
	}
}

func TestTokenCommand(t *testing.T) {
	out := execute(t, "token", "--sub", "u1", "--email", "u1@example.com", "--jwt-secret", "s3cret")

	auth, err := handler.NewAuth("s3cret")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	actor, err := auth.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if actor.ID != "u1" || actor.Email != "u1@example.com" {
		t.Errorf("actor = %+v", actor)
	}
}
