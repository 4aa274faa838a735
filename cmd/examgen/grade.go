package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/engine"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade pending text answers of an exam with the configured LLM",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	addLLMFlags(f)
	addActorFlags(f)
	f.String("exam-id", "", "Exam whose pending text answers are graded (required)")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("exam-id")
	_ = cmd.MarkFlagRequired("creator")

	return cmd
}

func runGrade(cmd *cobra.Command, _ []string) error {
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

	client, err := newLLMClient(ctx, v)
	if err != nil {
		return err
	}
	defer client.Close()

	eng := engine.New(db, engineOptions(client)...)
	actor := model.Actor{ID: v.GetString("creator"), Email: v.GetString("creator-email")}
	summary, err := eng.TriggerBatchGrade(ctx, v.GetString("exam-id"), actor)
	if err != nil {
		return fmt.Errorf("grade text answers: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, appI18n.Tp(ctx, "AnswersGraded", summary.Graded))
	if summary.Pending > 0 {
		fmt.Fprintln(out, appI18n.Tp(ctx, "AnswersPending", summary.Pending))
	}
	return nil
}
