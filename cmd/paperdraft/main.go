package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skolist/paperdraft/internal/auth"
	"github.com/skolist/paperdraft/internal/client"
	"github.com/skolist/paperdraft/internal/draft"
	"github.com/skolist/paperdraft/internal/lib/slogcustom"
	"github.com/skolist/paperdraft/internal/realtime"
	"github.com/skolist/paperdraft/internal/storage/postgres"
)

func main() {
	log := setupLogger()
	slog.SetDefault(log)
	slog.Info("starting paper draft editor...")

	flagDSN := pflag.String("dsn", "", "postgres connection string")
	flagActivity := pflag.String("activity", "", "activity id to edit")
	flagAPIURL := pflag.String("api-url", "", "base url of the question generation backend")
	flagToken := pflag.String("token", "", "access token issued by the auth provider")
	flagConcepts := pflag.StringSlice("concepts", nil, "concept ids to generate questions for")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStorage(ctx, *flagDSN)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}

	session, err := auth.NewSession(*flagToken, time.Time{})
	if err != nil {
		slog.Error("bad access token", "error", err)
		os.Exit(1)
	}
	editor := draft.NewEditor(store, log, *flagActivity)
	if err := editor.Init(ctx); err != nil {
		slog.Error("init draft", "activity_id", *flagActivity, "error", err)
		os.Exit(1)
	}
	slog.Info("draft loaded", "sections", len(editor.Sections()))

	// Подписка открывается до запроса генерации, иначе строки,
	// записанные бэкендом до LISTEN, не будут доставлены.
	feed := realtime.NewPostgresFeed(store.Pool(), log)
	changes, err := feed.Subscribe(ctx, *flagActivity)
	if err != nil {
		slog.Error("subscribe to draft changes", "error", err)
		os.Exit(1)
	}

	if len(*flagConcepts) > 0 {
		generator := client.NewHTTPClient(*flagAPIURL, session)
		req := client.GenerateRequest{
			ActivityID: *flagActivity,
			ConceptIDs: *flagConcepts,
			Config: client.GenerateConfig{
				QuestionTypes: []client.QuestionTypeCount{
					{Type: "mcq4", Count: 5},
					{Type: "short_answer", Count: 5},
				},
				DifficultyDistribution: client.DifficultyDistribution{Easy: 4, Medium: 4, Hard: 2},
			},
		}
		if err := generator.GenerateQuestions(ctx, req); err != nil {
			slog.Error("generate questions", "error", err)
			os.Exit(1)
		}
		// Сгенерированные вопросы придут строками через realtime-фид.
		slog.Info("generation requested", "concepts", len(*flagConcepts))
	}

	reconciler := realtime.NewReconciler(feed, editor)
	if err := reconciler.Drain(ctx, changes); err != nil && ctx.Err() == nil {
		slog.Error("realtime reconciler stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger() *slog.Logger {
	return slog.New(slogcustom.NewCustomHandler(os.Stdout, slog.LevelDebug))
}
