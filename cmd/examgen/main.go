package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/engine"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examgen",
		Short: "AI-generated exams with objective and AI-assisted grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), gradeCmd(), tokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "examgen.db", "SQLite path or PostgreSQL connection string")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", string(llm.ProviderOpenAI), "LLM provider (openai, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", "llama3.2", "Model name for the OpenAI-compatible endpoint")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", llm.DefaultGeminiModel, "Gemini model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
}

func addActorFlags(f *pflag.FlagSet) {
	f.String("creator", "", "Actor ID of the exam creator (required)")
	f.String("creator-email", "", "Email of the exam creator")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgen")
	v.AddConfigPath("/etc/examgen")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	driver := store.Driver(strings.ToLower(v.GetString("db-driver")))
	db, err := store.Open(ctx, driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newLLMClient(ctx context.Context, v *viper.Viper) (llm.Client, error) {
	cfg := llm.Config{
		Provider: llm.Provider(strings.ToLower(v.GetString("llm-provider"))),
		Variant:  prompts.PromptVariant(strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))),
	}
	switch cfg.Provider {
	case llm.ProviderGemini:
		cfg.APIKey = v.GetString("gemini-key")
		cfg.Model = v.GetString("gemini-model")
	default:
		cfg.BaseURL = v.GetString("llm-url")
		cfg.APIKey = v.GetString("llm-key")
		cfg.Model = v.GetString("llm-model")
	}
	client, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	slog.Debug("LLM client ready", "provider", cfg.Provider, "model", cfg.Model, "variant", cfg.Variant)
	return client, nil
}

// localizedContext returns a context carrying a localizer for CLI output.
func localizedContext(ctx context.Context, lang string) (context.Context, error) {
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang)), nil
}

func engineOptions(client llm.Client) []engine.Option {
	opts := []engine.Option{engine.WithLogger(slog.Default())}
	if client != nil {
		opts = append(opts, engine.WithGenerator(client), engine.WithGrader(client))
	}
	return opts
}
