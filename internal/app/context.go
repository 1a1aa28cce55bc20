package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sixty/internal/assistant"
	"sixty/internal/config"
	"sixty/internal/curriculum"
	"sixty/internal/db"
	"sixty/internal/engine"
	"sixty/internal/migrate"
	"sixty/internal/repo"
)

type Options struct {
	Workspace string
	Logger    *zap.Logger
	// Now overrides the engine clock, e.g. for --today.
	Now func() time.Time
}

// Session is one activation of the tracker: config, store and a streak-evaluated engine.
type Session struct {
	Workspace string
	Config    *config.Config
	Engine    *engine.Engine
	// Repo is nil with the file storage driver.
	Repo   *repo.Repo
	Logger *zap.Logger

	conn *sql.DB
}

// LoadEnv reads <workspace>/.env into the process environment without overriding
// variables that are already set.
func LoadEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Open loads config, opens the configured store and restores progress.
func Open(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := LoadEnv(opts.Workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	s := &Session{Workspace: opts.Workspace, Config: cfg, Logger: logger}

	var store engine.Store
	switch cfg.Storage.Driver {
	case "file":
		store = repo.NewFileStore(opts.Workspace)
	default:
		conn, err := db.Open(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		version, err := migrate.CurrentVersion(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("schema version: %w", err)
		}
		if latest, err := migrate.Latest(); err == nil && version > latest {
			conn.Close()
			return nil, fmt.Errorf("database schema %d is newer than this build supports (%d)", version, latest)
		}
		logger.Debug("database ready", zap.String("path", db.Path(opts.Workspace)), zap.Int("schema", version))
		r := repo.Repo{DB: conn, Now: opts.Now}
		s.conn, s.Repo, store = conn, &r, r
	}

	s.Engine = engine.New(store, curriculum.Default(), logger.Named("engine"))
	if opts.Now != nil {
		s.Engine.Now = opts.Now
	}
	if err := s.Engine.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug("session opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.Int("current_day", s.Engine.CurrentDay()),
	)
	return s, nil
}

// Gateway builds the assistant client from config and the environment.
func (s *Session) Gateway(ctx context.Context) (*assistant.GenAI, error) {
	a := s.Config.Assistant
	return assistant.NewGenAI(ctx, assistant.GenAIOptions{
		APIKey:      a.APIKey(),
		ChatModel:   a.ChatModel,
		SpeechModel: a.SpeechModel,
		Voice:       a.Voice,
	}, s.Logger.Named("assistant"))
}

// Conversation is nil, without error, when no API key is configured.
func (s *Session) Conversation(ctx context.Context) (*assistant.Conversation, error) {
	gw, err := s.Gateway(ctx)
	if errors.Is(err, assistant.ErrNoAPIKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return assistant.NewConversation(gw, s.Logger.Named("assistant")), nil
}

func (s *Session) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
