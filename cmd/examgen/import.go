package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/engine"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import ready-made exams from YAML or JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	addActorFlags(f)
	f.Bool("force", false, "Import files even when they are unchanged since the last import")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("creator")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, err := localizedContext(cmd.Context(), v.GetString("lang"))
	if err != nil {
		return err
	}
	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	eng := engine.New(db, engineOptions(nil)...)
	actor := model.Actor{ID: v.GetString("creator"), Email: v.GetString("creator-email")}
	force := v.GetBool("force")

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash && !force {
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "ImportSkipped", map[string]any{"Path": path}))
			continue
		}
		if storedHash != "" && storedHash != hash {
			slog.Info("exam file changed since last import, importing as a new exam", "path", path)
		}

		ef, err := engine.ParseExamFile(data, path)
		if err != nil {
			return err
		}
		exam, err := eng.ImportExam(ctx, actor, ef)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported exam", "path", path, "exam_id", exam.ID)
		fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "ExamImported", map[string]any{"Title": exam.Title, "ID": exam.ID}))
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
