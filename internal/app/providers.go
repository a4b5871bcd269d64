package app

import (
	"fmt"
	"net/http"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mcpagent/internal/config"
	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/provider/llm/anyllm"
	"github.com/MrWong99/mcpagent/pkg/provider/llm/ollama"
	"github.com/MrWong99/mcpagent/pkg/provider/llm/openai"
)

// anyLLMBackends are served through any-llm-go. They all take an optional
// API key and base URL.
var anyLLMBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// RegisterProviders wires every built-in LLM factory into reg.
func RegisterProviders(reg *config.Registry) {
	reg.RegisterLLM("ollama", newOllama)
	reg.RegisterLLM("openai", newOpenAI)

	for _, name := range anyLLMBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}
}

// newOllama talks to the server natively so that unload and heartbeat work.
func newOllama(entry config.ProviderEntry) (llm.Provider, error) {
	var o config.OllamaOptions
	if err := config.DecodeOptions(entry.Options, &o); err != nil {
		return nil, fmt.Errorf("ollama options: %w", err)
	}

	var opts []ollama.Option
	if o.KeepAlive != 0 {
		opts = append(opts, ollama.WithKeepAlive(o.KeepAlive))
	}
	if o.Timeout != 0 {
		opts = append(opts, ollama.WithHTTPClient(&http.Client{Timeout: o.Timeout}))
	}
	if len(o.Model) > 0 {
		opts = append(opts, ollama.WithOptions(o.Model))
	}
	return ollama.New(entry.BaseURL, entry.Model, opts...)
}

func newOpenAI(entry config.ProviderEntry) (llm.Provider, error) {
	var o config.OpenAIOptions
	if err := config.DecodeOptions(entry.Options, &o); err != nil {
		return nil, fmt.Errorf("openai options: %w", err)
	}

	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	if o.Organization != "" {
		opts = append(opts, openai.WithOrganization(o.Organization))
	}
	if o.Timeout != 0 {
		opts = append(opts, openai.WithTimeout(o.Timeout))
	}
	if o.ContextWindow > 0 {
		opts = append(opts, openai.WithContextWindow(o.ContextWindow))
	}
	return openai.New(entry.APIKey, entry.Model, opts...)
}
