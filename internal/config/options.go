package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// OllamaOptions are the options understood by the ollama provider.
type OllamaOptions struct {
	// KeepAlive is how long the model stays loaded after a request, e.g.
	// "10m". Zero keeps the server default.
	KeepAlive time.Duration `mapstructure:"keep_alive"`

	// Timeout bounds a whole HTTP exchange with the server. Zero means none.
	Timeout time.Duration `mapstructure:"timeout"`

	// Model collects every other key and is forwarded as model options
	// (num_ctx, top_p, seed, ...).
	Model map[string]any `mapstructure:",remain"`
}

// OpenAIOptions are the options understood by the openai provider.
type OpenAIOptions struct {
	Organization string        `mapstructure:"organization"`
	Timeout      time.Duration `mapstructure:"timeout"`

	// ContextWindow is reported by the provider's capabilities. Compatible
	// servers do not advertise it.
	ContextWindow int `mapstructure:"context_window"`
}

// DecodeOptions decodes a provider options map into out, a pointer to a
// struct with mapstructure tags. Durations may be given as strings ("30s")
// and numbers may be given as strings.
func DecodeOptions(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("config: options decoder: %w", err)
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("config: decode options: %w", err)
	}
	return nil
}
