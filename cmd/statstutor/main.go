package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/statstutor/internal/config"
	"github.com/TobiSchelling/statstutor/internal/fetch"
	"github.com/TobiSchelling/statstutor/internal/ingest"
	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/pdf"
	"github.com/TobiSchelling/statstutor/internal/server"
	"github.com/TobiSchelling/statstutor/internal/transcript"
	"github.com/TobiSchelling/statstutor/internal/tui"
	"github.com/TobiSchelling/statstutor/internal/tutor"
	"github.com/TobiSchelling/statstutor/internal/validate"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envFile    string
	cfg        *config.Config
	log        *logger.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "statstutor",
	Short:   "Guided statistical analysis of research articles",
	Long:    "statstutor walks students through the statistics of an empirical research article, one question at a time.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		var err error
		var path string
		cfg, path, err = config.Resolve(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(cfg.Logging.Mode, level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		if path == "" {
			log.Debug("no config file found, using built-in defaults")
		} else {
			log.Debug("loaded config", "path", path)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(ingestCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("statstutor", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/statstutor/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set OPENAI_API_KEY (or configure Ollama) and optionally DATABASE_URL before running 'statstutor serve'.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s\n\n", cfg.Database.Driver)
		fmt.Println("Sessions:")
		fmt.Printf("  Articles: %d\n", stats.Articles)
		fmt.Printf("  Conversations: %d\n", stats.Conversations)
		fmt.Printf("  Turns: %d\n", stats.Turns)
		fmt.Println("\nCourse materials:")
		fmt.Printf("  Files: %d\n", stats.CourseFiles)
		fmt.Printf("  Chunks: %d\n", stats.CourseChunks)
		fmt.Println("\nLLM:")
		fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
		fmt.Printf("  Analysis model: %s\n", cfg.LLM.AnalysisModel)
		fmt.Printf("  Chat model: %s\n", cfg.LLM.ChatModel)
		keyState := "missing"
		if cfg.LLM.APIKey() != "" {
			keyState = "set"
		}
		fmt.Printf("  %s: %s\n", cfg.LLM.APIKeyEnv, keyState)
		fmt.Printf("\nLock backend: %s\n", cfg.Lock.Backend)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := server.New(server.Deps{
			Tutor:       a.tutor,
			Exporter:    a.exporter,
			Chat:        a.chat,
			Validator:   a.validator,
			Fetcher:     a.fetcher,
			Suggestions: cfg.Suggestions,
			Log:         log,
		}, server.Options{
			Origins:              cfg.Server.Origins(),
			PreviewOriginPattern: cfg.Server.PreviewOriginPattern,
			MaxUploadBytes:       int64(cfg.Server.MaxUploadMB) << 20,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Starting server at http://%s\n", cfg.Server.Addr())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, cfg.Server.Addr(), srv.Handler(), log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- validate command ---

var validateCmd = &cobra.Command{
	Use:   "validate <file.pdf>",
	Short: "Check whether a PDF looks like an empirical research article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := pdf.ExtractFile(args[0])
		text := ""
		if err != nil {
			log.Debug("extraction failed", "file", args[0], "error", err)
		} else {
			text = doc.Text
		}

		verdict := validate.New(cfg.Validation).Validate(text)
		if verdict.Accepted {
			fmt.Println("Accepted: looks like an empirical research article.")
			if doc != nil && doc.Title != "" {
				fmt.Printf("Title: %s\n", doc.Title)
			}
			return nil
		}
		fmt.Printf("Rejected (%s)\n%s\n", verdict.Reason, verdict.Message())
		printSuggestions()
		return nil
	},
}

// --- session command ---

var sessionCmd = &cobra.Command{
	Use:   "session <file.pdf|url>",
	Short: "Analyze an article interactively in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		in, err := loadArticle(ctx, a, args[0])
		if err != nil {
			return err
		}
		verdict := a.validator.Validate(in.Text)
		if !verdict.Accepted {
			fmt.Println(verdict.Message())
			printSuggestions()
			return nil
		}

		fmt.Println("Preparing your first question...")
		res, err := a.tutor.Start(ctx, in)
		if err != nil {
			return err
		}
		if err := tui.Run(ctx, a.tutor, res); err != nil {
			return err
		}
		fmt.Printf("Transcript: statstutor export %s --format markdown\n", res.ConversationID)
		return nil
	},
}

func loadArticle(ctx context.Context, a *app, source string) (tutor.ArticleInput, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		article, err := a.fetcher.Fetch(ctx, source)
		if err != nil {
			return tutor.ArticleInput{}, fmt.Errorf("fetching article: %w", err)
		}
		return tutor.ArticleInput{Text: article.Text, Title: article.Title, Source: article.URL}, nil
	}

	doc, err := pdf.ExtractFile(source)
	if err != nil {
		if errors.Is(err, pdf.ErrUnreadable) {
			return tutor.ArticleInput{Source: source}, nil
		}
		return tutor.ArticleInput{}, err
	}
	return tutor.ArticleInput{Text: doc.Text, Title: doc.Title, Source: filepath.Base(source)}, nil
}

// --- export command ---

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Export a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		t, err := transcript.NewExporter(st, cfg.Tutor.TitleCharLimit).Export(ctx, args[0])
		if err != nil {
			return err
		}

		var out []byte
		switch exportFormat {
		case "json":
			out, err = json.MarshalIndent(t, "", "  ")
		case "markdown", "md":
			out = []byte(transcript.RenderMarkdown(t))
		case "html":
			out, err = transcript.RenderHTML(t)
		default:
			return fmt.Errorf("unknown format %q (want json, markdown or html)", exportFormat)
		}
		if err != nil {
			return fmt.Errorf("rendering transcript: %w", err)
		}

		if exportOutput == "" {
			_, err = os.Stdout.Write(out)
			return err
		}
		if err := os.WriteFile(exportOutput, out, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", exportOutput, err)
		}
		fmt.Printf("Wrote %s\n", exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json, markdown or html")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Load course materials into the retrieval index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		in := ingest.New(st, newEmbedder(), ingest.Options{
			ChunkWords:  cfg.Ingest.ChunkWords,
			BatchSize:   cfg.Ingest.BatchSize,
			Concurrency: cfg.Ingest.Concurrency,
		}, log)

		result, err := in.Run(ctx, args[0])
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/2: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if err != nil {
			return err
		}
		fmt.Println("\nIngestion complete!")
		return nil
	},
}

func printSuggestions() {
	s := cfg.Suggestions
	fmt.Println("\nFind an empirical article:")
	fmt.Printf("  BruKnow:       %s\n", s.BruKnow)
	fmt.Printf("  PubMed:        %s\n", s.PubMed)
	fmt.Printf("  Nature:        %s\n", s.Nature)
	fmt.Printf("  ScienceDirect: %s\n", s.ScienceDirect)
}

// newFetcher bounds article downloads by the model timeout.
func newFetcher() *fetch.Fetcher {
	return fetch.New(cfg.LLM.Timeout())
}
