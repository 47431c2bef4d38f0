package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/statstutor/internal/chat"
	"github.com/TobiSchelling/statstutor/internal/config"
	"github.com/TobiSchelling/statstutor/internal/database"
	"github.com/TobiSchelling/statstutor/internal/fetch"
	"github.com/TobiSchelling/statstutor/internal/ingest"
	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/lock"
	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/pgstore"
	"github.com/TobiSchelling/statstutor/internal/prompt"
	"github.com/TobiSchelling/statstutor/internal/rag"
	"github.com/TobiSchelling/statstutor/internal/retry"
	"github.com/TobiSchelling/statstutor/internal/transcript"
	"github.com/TobiSchelling/statstutor/internal/tutor"
	"github.com/TobiSchelling/statstutor/internal/validate"
)

// store is the method set shared by the SQLite and PostgreSQL backends.
type store interface {
	tutor.Store
	rag.Index
	ingest.Store
	Stats(ctx context.Context) (*model.Stats, error)
	Close() error
}

var (
	_ store = (*database.DB)(nil)
	_ store = (*pgstore.Store)(nil)
)

func openStore(ctx context.Context) (store, error) {
	switch strings.ToLower(cfg.Database.Driver) {
	case "postgres", "postgresql", "pgvector":
		url := cfg.Database.URL()
		if url == "" {
			return nil, fmt.Errorf("database driver %q needs %s to be set", cfg.Database.Driver, cfg.Database.URLEnv)
		}
		st, err := pgstore.Open(ctx, url, pgstore.Options{
			MaxConns:      cfg.Database.MaxConns,
			MatchFunction: cfg.Database.MatchFunction,
		}, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite", "":
		db, err := database.Open(cfg.Database.SQLitePath(), log)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func openLocker(ctx context.Context) (lock.Locker, func() error, error) {
	switch strings.ToLower(cfg.Lock.Backend) {
	case "redis":
		addr := cfg.Lock.RedisAddr()
		if addr == "" {
			return nil, nil, fmt.Errorf("lock backend redis needs %s to be set", cfg.Lock.RedisAddrEnv)
		}
		rdb, err := lock.NewRedisClient(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis conversation locks")
		return lock.NewRedis(rdb, cfg.Lock.TTL(), log), rdb.Close, nil
	case "local", "":
		return lock.NewLocal(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}

func readPolicy(c config.Tutor) retry.Policy {
	p := retry.DefaultPolicy
	if c.ReadAttempts > 0 {
		p.Attempts = uint(c.ReadAttempts)
	}
	return p
}

func newEmbedder() llm.Embedder {
	return llm.CreateEmbedder(cfg.LLM)
}

// app holds the services behind the serve and session commands.
type app struct {
	store     store
	tutor     *tutor.Service
	exporter  *transcript.Exporter
	chat      *chat.Service
	validator *validate.Validator
	fetcher   *fetch.Fetcher
	closeLock func() error
}

func newApp(ctx context.Context) (*app, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	locker, closeLock, err := openLocker(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	timeout := cfg.LLM.Timeout()
	policy := readPolicy(cfg.Tutor)
	retriever := rag.NewRetriever(newEmbedder(), st, policy, timeout, log)

	tutorSvc := tutor.New(
		st,
		llm.CreateProvider(cfg.LLM, cfg.LLM.AnalysisModel, log),
		retriever,
		prompt.New(cfg.Tutor.ArticleCharLimit),
		locker,
		tutor.Options{
			RetrievalK:     cfg.Tutor.RetrievalK,
			MaxTokens:      cfg.LLM.MaxTokens,
			TitleCharLimit: cfg.Tutor.TitleCharLimit,
			Timeout:        timeout,
			ReadPolicy:     policy,
		},
		log,
	)
	chatSvc := chat.New(
		llm.CreateProvider(cfg.LLM, cfg.LLM.ChatModel, log),
		retriever,
		cfg.LLM.ChatMaxTokens,
		cfg.Tutor.RetrievalK,
		timeout,
		log,
	)

	return &app{
		store:     st,
		tutor:     tutorSvc,
		exporter:  transcript.NewExporter(st, cfg.Tutor.TitleCharLimit),
		chat:      chatSvc,
		validator: validate.New(cfg.Validation),
		fetcher:   newFetcher(),
		closeLock: closeLock,
	}, nil
}

// Close releases the store and the lock backend.
func (a *app) Close() {
	if err := a.closeLock(); err != nil {
		log.Warn("closing lock backend", "error", err)
	}
	if err := a.store.Close(); err != nil {
		log.Warn("closing store", "error", err)
	}
}
