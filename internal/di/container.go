package di

import (
	"fmt"
	"net/http"

	"agentloop/internal/adapter/tool"
	"agentloop/internal/application/port/input"
	"agentloop/internal/application/port/output"
	"agentloop/internal/application/service"
	"agentloop/internal/infrastructure/browser/rod"
	"agentloop/internal/infrastructure/env"
	"agentloop/internal/infrastructure/httpapi"
	"agentloop/internal/infrastructure/llm/anthropic"
	"agentloop/internal/infrastructure/llm/langchain"
	"agentloop/internal/infrastructure/llm/openrouter"
	"agentloop/internal/infrastructure/llm/replay"
	"agentloop/internal/infrastructure/llm/roundtrip"
	"agentloop/internal/infrastructure/llm/tokens"
	"agentloop/internal/infrastructure/logger"
	"agentloop/internal/infrastructure/metrics"
	"agentloop/internal/infrastructure/prompts"
	"agentloop/internal/infrastructure/snapshot"
	"agentloop/internal/usecase/executor"

	"github.com/spf13/afero"
	"github.com/tmc/langchaingo/llms/ollama"
)

type Container struct {
	Config       env.Config
	Logger       *logger.LoggerAdapter
	Transport    output.ModelTransport
	Tools        *service.ToolRegistryImpl
	Metrics      *metrics.Service
	Snapshots    *snapshot.FileStore
	Browser      *rod.BrowserAdapter
	SystemPrompt string
	Fs           afero.Fs
}

// NewContainer wires every component from cfg. Secrets not present in cfg
// are looked up in secrets. taskName only names the log file.
func NewContainer(cfg env.Config, secrets output.SecretSource, taskName string) (*Container, error) {
	log, err := logger.NewLoggerAdapter(logger.Config{
		Dir:     cfg.LogDir,
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
	}, taskName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewService(),
		Fs:      afero.NewOsFs(),
	}

	c.Transport, err = newTransport(cfg, secrets, c.Fs, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = cfg.BrowserHeadless
	c.Browser = rod.NewBrowserAdapter(browserCfg, log)

	c.Tools, err = NewTools(cfg, c.Browser)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	c.SystemPrompt, err = prompts.GenerateSystemPrompt(prompts.DefaultSystemPrompt, c.Tools, "")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build system prompt: %w", err)
	}

	c.Snapshots, err = snapshot.NewFileStore(c.Fs, cfg.StateDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	log.Info("Container initialized",
		"provider", cfg.Provider,
		"transport", c.Transport.Name(),
		"tools", c.Tools.Names(),
		"maxIterations", cfg.MaxIterations)
	return c, nil
}

// NewRunner returns a fresh loop configured from the container. Extra options
// are applied last.
func (c *Container) NewRunner(opts ...executor.Option) *executor.UseCase {
	base := []executor.Option{
		executor.WithSystemPrompt(c.SystemPrompt),
		executor.WithMaxIterations(c.Config.MaxIterations),
		executor.WithObservationLimit(c.Config.ObservationLimit),
		executor.WithMetrics(c.Metrics),
	}
	return executor.New(c.Transport, c.Tools, c.Logger, append(base, opts...)...)
}

func (c *Container) HTTPHandler() http.Handler {
	factory := func() input.AgentRunner { return c.NewRunner() }
	return httpapi.NewRouter(httpapi.NewServer(factory, c.Tools, c.Snapshots, c.Metrics.Handler(), c.Logger))
}

func (c *Container) Close() {
	if c.Browser != nil {
		c.Browser.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}

// NewTools registers the builtin tools. fetch_page is left out when fetcher
// is nil.
func NewTools(cfg env.Config, fetcher output.PageFetcher) (*service.ToolRegistryImpl, error) {
	return service.NewToolRegistry(tool.Builtins(tool.NewWorkspaceFs(cfg.WorkspaceRoot), fetcher, cfg.FetchLimit)...)
}

func newTransport(cfg env.Config, secrets output.SecretSource, fs afero.Fs, log output.LoggerPort) (output.ModelTransport, error) {
	apiKey := cfg.APIKey

	switch cfg.Provider {
	case "anthropic":
		if apiKey == "" && secrets != nil {
			apiKey = secrets.FirstOf("ANTHROPIC_API_KEY")
		}
		return anthropic.New(anthropic.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			ThinkingBudget: cfg.ThinkingBudget,
			HTTPClient:     roundtrip.NewLoggingClient(log),
		}, log)

	case "openrouter":
		if apiKey == "" && secrets != nil {
			apiKey = secrets.FirstOf("OPENROUTER_API_KEY", "OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openrouter API key is required")
		}
		model := cfg.Model
		if model == "" && secrets != nil {
			model = secrets.Get("OPENROUTER_MODEL_NAME")
		}
		orCfg := openrouter.DefaultConfig(apiKey, model)
		if cfg.BaseURL != "" {
			orCfg.BaseURL = cfg.BaseURL
		}
		orCfg.MaxTokens = cfg.MaxTokens
		orCfg.Logger = log
		return openrouter.NewOpenRouterAdapter(orCfg), nil

	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return langchain.New(model, log,
			langchain.WithModelName(cfg.Model),
			langchain.WithMaxTokens(cfg.MaxTokens),
			langchain.WithCounter(newCounter(log))), nil

	case "replay":
		return replay.Load(fs, cfg.ReplayScript, log)
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func newCounter(log output.LoggerPort) *tokens.Counter {
	counter, err := tokens.NewCounter()
	if err != nil {
		log.Warn("Token encoder unavailable, estimating usage", "error", err)
		return tokens.NewEstimator()
	}
	return counter
}
