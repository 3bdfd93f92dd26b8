package main

import (
	"fmt"
	"strings"
	"time"

	"screener-scraper/bot"
	"screener-scraper/db"
	"screener-scraper/export"
	"screener-scraper/scheduler"
	"screener-scraper/session"
	"screener-scraper/web"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	fetchURL    string
	fetchOut    string
	fetchFormat string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8501)")
	rootCmd.AddCommand(serveCmd)

	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "screener.in screen URL")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "Output directory (default from config)")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "both", "Output format: csv, json or both")
	fetchCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(fetchCmd)

	rootCmd.AddCommand(botCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--addr <host:port>]",
	Short: "Serves the interactive page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := web.Options{ExampleURLs: a.cfg.Server.ExampleURLs}
		if a.history != nil {
			opts.History = a.history
		}
		if a.sheets != nil {
			opts.Sheets = a.sheets
		}

		addr := serveAddr
		if addr == "" {
			addr = a.cfg.Server.Addr
		}
		return web.NewServer(a.scraper, session.NewStore(), opts).ListenAndServe(ctx, addr)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch --url <screen URL> [--out <dir>] [--format csv|json|both]",
	Short: "Fetches one screen and writes it to files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		formats, err := parseFormats(fetchFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		url := strings.TrimSpace(fetchURL)
		if err := requireValidURL(a.scraper, url); err != nil {
			return err
		}

		runID := a.startRun(ctx, url, db.SourceCLI)
		pages := 0
		data, err := a.scraper.FetchWithProgress(ctx, url, func(page, rows int) {
			pages = page
		})
		a.finishRun(ctx, runID, data.Len(), pages, err)
		if err != nil {
			return err
		}

		fmt.Printf("Fetched %d records with %d columns from %d pages.\n", data.Len(), len(data.Columns), pages)
		if data.Len() == 0 {
			return nil
		}

		out := fetchOut
		if out == "" {
			out = a.cfg.Export.OutputDir
		}
		now := time.Now()
		for _, f := range formats {
			path, err := export.WriteFile(out, data, f, now)
			if err != nil {
				return fmt.Errorf("failed to convert to %s: %w", strings.ToUpper(string(f)), err)
			}
			fmt.Println("Wrote", path)
		}
		return nil
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Runs the Telegram bot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.secrets.BotToken == "" {
			return fmt.Errorf("SCREENER_BOT_TOKEN environment variable is not set")
		}
		api, err := tgbotapi.NewBotAPI(a.secrets.BotToken)
		if err != nil {
			return fmt.Errorf("failed to initialize bot: %w", err)
		}
		log.Info("authorized on account", "username", api.Self.UserName)

		opts := scheduler.Options{QueueSize: a.cfg.Bot.QueueSize}
		if a.history != nil {
			opts.History = a.history
		}
		if a.sheets != nil {
			opts.Sheets = a.sheets
		}
		sched := scheduler.NewScheduler(a.scraper, bot.NewNotifier(api), opts)
		sched.Start(ctx)

		b := bot.New(api, sched, bot.Options{
			AllowedUsers:   append(append([]int64(nil), a.cfg.Bot.AllowedUsers...), a.secrets.AllowedUsers...),
			SpreadsheetURL: a.spreadsheetURL(),
			ValidateURL:    a.scraper.ValidateURL,
		})
		b.Run(ctx, api)
		sched.Wait()
		return nil
	},
}

func parseFormats(s string) ([]export.Format, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return []export.Format{export.CSV, export.JSON}, nil
	}
	f, err := export.ParseFormat(s)
	if err != nil {
		return nil, err
	}
	return []export.Format{f}, nil
}
