package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/goccy/go-json"

	"github.com/theracowch/cowch/pkg/config"
	"github.com/theracowch/cowch/pkg/logger"
	"github.com/theracowch/cowch/pkg/maintenance"
	"github.com/theracowch/cowch/pkg/persona"
	"github.com/theracowch/cowch/pkg/profile"
	"github.com/theracowch/cowch/pkg/providers"
	"github.com/theracowch/cowch/pkg/server"
)

const shutdownTimeout = 15 * time.Second

func onboard(w io.Writer) error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(w, "Config already exists at %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(filepath.Join(workspace, "state"), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	fmt.Fprintf(w, "%s is ready!\n", appName)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Add your API key to", configPath)
	fmt.Fprintln(w, "     or export COWCH_PROVIDERS_ANTHROPIC_API_KEY")
	fmt.Fprintf(w, "  2. Start the server: %s serve\n", appName)
	return nil
}

func serveCmd(debug bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Server.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(server.Deps{
		Store:      svc.store,
		Compressor: svc.compressor,
		Chat:       svc.chat,
		Summarizer: svc.endpointSummarizer,
	}, server.Options{
		Addr:           cfg.ListenAddr(),
		Mode:           cfg.Server.Mode,
		AllowOrigins:   cfg.Server.AllowOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	scheduler, err := maintenance.NewScheduler(cfg.Compression.MaintenanceCron, svc.store, svc.compressor)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	logger.InfoC("server", "Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WarnCF("server", "Shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func chatCmd(w io.Writer, user, message string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if strings.TrimSpace(message) != "" {
		reply, err := chatTurn(context.Background(), svc, user, message)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s %s\n", appName, reply.Response)
		return nil
	}

	fmt.Fprintf(w, "%s Interactive mode (Ctrl+C to exit)\n\n", appName)
	interactiveMode(w, svc, user)
	return nil
}

// chatTurn mirrors the /api/chat flow: record the user message, answer with
// the profile context, record the reply, and compress when due.
func chatTurn(ctx context.Context, svc *services, user, message string) (persona.ChatReply, error) {
	history := svc.store.AddToHistory(ctx, user, profile.Message{Role: profile.RoleUser, Content: message})
	prior := history
	if len(prior) > 0 {
		prior = prior[:len(prior)-1]
	}
	apiCtx := profile.BuildAPIContext(svc.store.GetProfile(ctx, user), history)

	reply, err := svc.chat.Reply(ctx, persona.ChatRequest{
		Message: message,
		History: profile.Messages(prior),
		Context: &apiCtx,
	})
	if err != nil {
		return persona.ChatReply{}, err
	}
	svc.store.AddToHistory(ctx, user, profile.Message{Role: profile.RoleAssistant, Content: reply.Response})
	if svc.compressor.MaybeCompress(ctx, user) {
		logger.DebugCF("cli", "Profile compressed", map[string]interface{}{"user": user})
	}
	return reply, nil
}

func interactiveMode(w io.Writer, svc *services, user string) {
	prompt := fmt.Sprintf("%s You: ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".cowch_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(w, "Error initializing readline: %v\n", err)
		fmt.Fprintln(w, "Falling back to simple input mode...")
		simpleInteractiveMode(w, svc, user)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(w, "\nGoodbye!")
				return
			}
			fmt.Fprintf(w, "Error reading input: %v\n", err)
			continue
		}
		if !handleLine(w, svc, user, line) {
			return
		}
	}
}

func simpleInteractiveMode(w io.Writer, svc *services, user string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprintf(w, "%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(w, "\nGoodbye!")
				return
			}
			fmt.Fprintf(w, "Error reading input: %v\n", err)
			continue
		}
		if !handleLine(w, svc, user, line) {
			return
		}
	}
}

// handleLine runs one REPL line and reports whether to keep reading.
func handleLine(w io.Writer, svc *services, user, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Fprintln(w, "Goodbye!")
		return false
	}

	reply, err := chatTurn(context.Background(), svc, user, input)
	if err != nil {
		label, fallback := persona.FallbackFor(err)
		logger.WarnCF("cli", label, map[string]interface{}{"error": err.Error()})
		fmt.Fprintf(w, "\n%s %s\n\n", appName, fallback)
		return true
	}
	fmt.Fprintf(w, "\n%s %s\n\n", appName, reply.Response)
	return true
}

func profileShowCmd(w io.Writer, user string) error {
	return withStore(func(svc *services) error {
		return writeJSON(w, svc.store.GetProfile(context.Background(), user))
	})
}

func profileContextCmd(w io.Writer, user string) error {
	return withStore(func(svc *services) error {
		ctx := context.Background()
		apiCtx := profile.BuildAPIContext(svc.store.GetProfile(ctx, user), svc.store.GetFullHistory(ctx, user))
		return writeJSON(w, apiCtx)
	})
}

func profileHistoryCmd(w io.Writer, user string) error {
	return withStore(func(svc *services) error {
		return writeJSON(w, svc.store.GetFullHistory(context.Background(), user))
	})
}

func profileClearCmd(w io.Writer, user string, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("refusing to clear data for %q without --yes", user)
	}
	return withStore(func(svc *services) error {
		if !svc.store.ClearAllData(context.Background(), user) {
			return fmt.Errorf("clear data for %q failed", user)
		}
		fmt.Fprintf(w, "Cleared profile and history for %s\n", user)
		return nil
	})
}

func profileCompressCmd(w io.Writer, user string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	p := svc.compressor.CompressProfile(ctx, user, svc.compressor.RecentWindow(ctx, user))
	return writeJSON(w, p)
}

func imagineCmd(w io.Writer, user, domain string) error {
	key, ok := profile.ImagineKey(domain)
	if !ok {
		return fmt.Errorf("unknown IMAGINE domain %q", domain)
	}
	return withStore(func(svc *services) error {
		if !svc.store.RecordImagineEngagement(context.Background(), user, domain) {
			return fmt.Errorf("record engagement for %q failed", user)
		}
		fmt.Fprintf(w, "Recorded %s engagement for %s\n", key, user)
		return nil
	})
}

func statusCmd(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configPath := getConfigPath()

	fmt.Fprintf(w, "%s Status\n", appName)
	fmt.Fprintf(w, "Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "Build: %s\n", build)
	}
	fmt.Fprintln(w)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(w, "Config:", configPath, "✓")
	} else {
		fmt.Fprintln(w, "Config:", configPath, "✗")
	}

	workspace := cfg.WorkspacePath()
	if _, err := os.Stat(workspace); err == nil {
		fmt.Fprintln(w, "Workspace:", workspace, "✓")
	} else {
		fmt.Fprintln(w, "Workspace:", workspace, "✗")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch backend {
	case "", "sqlite":
		db := cfg.SQLitePath()
		if _, err := os.Stat(db); err == nil {
			fmt.Fprintln(w, "Storage: sqlite", db, "✓")
		} else {
			fmt.Fprintln(w, "Storage: sqlite", db, "not initialized")
		}
	case "redis":
		fmt.Fprintln(w, "Storage: redis", cfg.Storage.RedisAddr)
	default:
		fmt.Fprintln(w, "Storage:", backend)
	}

	fmt.Fprintf(w, "Model: %s\n", cfg.Agents.Defaults.Model)
	name, configured, mode, err := providers.ProviderCredentialStatus(cfg)
	if err != nil {
		fmt.Fprintln(w, "Provider:", err)
	} else {
		status := "not set"
		if configured {
			status = "✓"
			if mode != "" {
				status += " (" + mode + ")"
			}
		}
		fmt.Fprintf(w, "Provider: %s %s\n", name, status)
	}
	fmt.Fprintf(w, "Compression: threshold %d, window %d, summarizer %s\n",
		cfg.Compression.Threshold, cfg.Compression.Window, cfg.Compression.Summarizer)
	fmt.Fprintf(w, "Maintenance: %s\n", cfg.Compression.MaintenanceCron)
	fmt.Fprintf(w, "Listen: %s\n", cfg.ListenAddr())
	return nil
}

func withStore(fn func(svc *services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
