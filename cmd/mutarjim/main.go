package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/onepurp/Mutarjim-Pro/internal/config"
	"github.com/onepurp/Mutarjim-Pro/internal/engine"
	"github.com/onepurp/Mutarjim-Pro/internal/server"
	"github.com/onepurp/Mutarjim-Pro/internal/store"
	"github.com/onepurp/Mutarjim-Pro/internal/translator"
)

var (
	version = "1.0.0"
	logger  *logrus.Logger
)

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mutarjim",
	Short: "Translate EPUB books with an LLM while preserving their markup",
	Long: `Mutarjim Pro imports an EPUB, cuts its content documents into
structure-aligned segments, translates them through a model fallback chain
with tag-integrity checking, and reassembles a translated archive.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("db", "d", "", "Path to the project database")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(retrySkippedCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Mutarjim Pro v%s\n", version)
	},
}

// setup wires the engine from configuration. The caller closes the store.
func setup(cmd *cobra.Command) (*engine.Engine, *store.Store, *config.Config, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}

	client := translator.NewClient(translator.Options{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Models:     cfg.Models,
		Timeout:    cfg.TranslateTimeout,
		SourceLang: cfg.SourceLanguage,
		TargetLang: cfg.TargetLanguage,
	}, logger)

	eng := engine.New(st, client, engine.Config{
		WorkerConcurrency: cfg.WorkerConcurrency,
		MaxRetries:        cfg.MaxRetries,
		BatchCharLimit:    cfg.BatchCharLimit,
		TargetLanguage:    cfg.TargetLanguage,
		TargetDirection:   cfg.TargetDirection,
		TextAlignment:     cfg.Export.TextAlignment,
		ForceAlignment:    cfg.Export.ForceAlignment,
	}, logger)

	return eng, st, cfg, nil
}

var importCmd = &cobra.Command{
	Use:   "import <book.epub>",
	Short: "Import an EPUB and segment it for translation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		project, err := eng.ImportProject(cmd.Context(), data)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %q by %s: %d segments\n", project.Title, project.Author, project.TotalSegments)
		return nil
	},
}

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Run the translation queue until it drains",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := eng.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if stats.Total == 0 {
			return fmt.Errorf("nothing to translate; import a book first")
		}

		bar := progressbar.NewOptions(stats.Total,
			progressbar.OptionSetDescription("translating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWriter(os.Stderr),
		)
		_ = bar.Set(stats.Translated)

		statsCh := eng.Hub().SubscribeStats()
		go func() {
			for update := range statsCh {
				_ = bar.Set(update.Translated)
			}
		}()

		if err := eng.Start(cmd.Context()); err != nil {
			return err
		}
		eng.Wait()
		fmt.Fprintln(os.Stderr)

		final, err := eng.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("State %s: %d/%d translated, %d failed, %d skipped\n",
			eng.State(), final.Translated, final.Total, final.Failed, final.Skipped)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <output.epub>",
	Short: "Reassemble the translated archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := eng.Export(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[0], err)
		}
		fmt.Printf("Exported %s (%d bytes)\n", args[0], len(data))
		return nil
	},
}

var retrySkippedCmd = &cobra.Command{
	Use:   "retry-skipped",
	Short: "Reset skipped segments to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := eng.RetrySkipped(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d skipped segments\n", n)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show translation progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		project, err := eng.Project(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := eng.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%s — %s\n", project.Title, project.Author)
		fmt.Printf("  translated: %d/%d\n", stats.Translated, stats.Total)
		fmt.Printf("  failed: %d  skipped: %d  pending: %d\n", stats.Failed, stats.Skipped, stats.Pending)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup <output.mtj>",
	Short: "Write a self-contained project backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := eng.Backup(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", args[0], err)
		}
		fmt.Printf("Backup written to %s (%d bytes)\n", args[0], len(data))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup.mtj>",
	Short: "Replace the database contents from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		if err := eng.Restore(cmd.Context(), data); err != nil {
			return err
		}

		project, err := eng.Project(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Restored %q: %d/%d translated\n",
			project.Title, project.TranslatedSegments, project.TotalSegments)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := server.New(eng, logger)
		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: srv.Handler(),
		}

		go func() {
			logger.Infof("Server running on port %d", cfg.Server.Port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Failed to start server: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("Server exited")
		return nil
	},
}
