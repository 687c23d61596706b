package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/theracowch/cowch/pkg/compression"
	"github.com/theracowch/cowch/pkg/config"
	"github.com/theracowch/cowch/pkg/persona"
	"github.com/theracowch/cowch/pkg/profile"
	"github.com/theracowch/cowch/pkg/providers"
	"github.com/theracowch/cowch/pkg/storage"
)

// services is the wired object graph shared by serve, chat and the
// profile subcommands.
type services struct {
	cfg      *config.Config
	adapter  *storage.Adapter
	store    *profile.Store
	provider providers.LLMProvider

	// summarizer feeds the compressor; endpointSummarizer backs
	// /api/compress-profile and always talks to the provider directly.
	summarizer         compression.Summarizer
	endpointSummarizer compression.Summarizer
	compressor         *compression.Compressor
	chat               *persona.ChatService
}

// openStore wires storage and the profile store only. Commands that never
// call a model use it so they work without provider credentials.
func openStore(cfg *config.Config) (*services, error) {
	backend, err := storage.Open(storage.Options{
		Backend:       cfg.Storage.Backend,
		SQLitePath:    cfg.SQLitePath(),
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	adapter := storage.NewAdapter(backend, cfg.Storage.KeyPrefix)
	store := profile.NewStore(adapter, profile.WithHistoryLimit(cfg.Compression.HistoryLimit))
	return &services{cfg: cfg, adapter: adapter, store: store}, nil
}

// openServices wires the full graph including the provider, summarizers,
// compressor and chat service.
func openServices(cfg *config.Config) (*services, error) {
	if err := providers.ValidateProviderConfig(cfg); err != nil {
		return nil, fmt.Errorf("provider configuration: %w", err)
	}
	provider, err := providers.CreateProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	svc, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	svc.provider = provider
	svc.endpointSummarizer = compression.NewProviderSummarizer(provider, cfg.Agents.Defaults.Model)

	summarizer, err := buildSummarizer(cfg, svc.endpointSummarizer)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.summarizer = summarizer
	svc.compressor = compression.NewCompressor(svc.store, summarizer, compression.Options{
		Threshold: cfg.Compression.Threshold,
		Window:    cfg.Compression.Window,
	})

	prompts := persona.NewPromptCache(
		cfg.Persona.FrameworkURL,
		time.Duration(cfg.Persona.CacheTTLMinutes)*time.Minute,
		persona.SystemClock,
	)
	svc.chat = persona.NewChatService(provider, prompts, persona.ChatOptions{
		Model:       cfg.Agents.Defaults.Model,
		MaxTokens:   cfg.Agents.Defaults.MaxTokens,
		Temperature: cfg.Agents.Defaults.Temperature,
	})
	return svc, nil
}

func buildSummarizer(cfg *config.Config, direct compression.Summarizer) (compression.Summarizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Compression.Summarizer)) {
	case "", "provider":
		return direct, nil
	case "http":
		url := strings.TrimSpace(cfg.Compression.SummarizerURL)
		if url == "" {
			return nil, fmt.Errorf("compression.summarizer_url is required when summarizer is \"http\"")
		}
		timeout := time.Duration(cfg.Providers.TimeoutSeconds) * time.Second
		return compression.NewHTTPSummarizer(url, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported summarizer %q: supported summarizers are http, provider", cfg.Compression.Summarizer)
	}
}

func (s *services) Close() error {
	if s == nil || s.adapter == nil {
		return nil
	}
	return s.adapter.Close()
}
