package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/fwojciec/relay/config"
	"github.com/fwojciec/relay/gemini"
	"github.com/fwojciec/relay/openai"
	"github.com/rs/zerolog"
)

// providerConfig is the provider chosen for a run and the key it uses.
type providerConfig struct {
	name string
	key  string
}

var keyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// resolveConfig selects the provider and its key. An explicit provider
// wins; otherwise the provider is detected from which key variable is set.
// An explicit API key overrides the provider's key variable.
func resolveConfig(providerFlag, apiKey string, keys config.Keys) (providerConfig, error) {
	envKeys := map[string]string{
		"openai":    keys.OpenAI,
		"anthropic": keys.Anthropic,
		"gemini":    keys.Gemini,
	}

	name := providerFlag
	if name == "" {
		var found []string
		for _, n := range []string{"openai", "anthropic", "gemini"} {
			if envKeys[n] != "" {
				found = append(found, n)
			}
		}
		switch len(found) {
		case 0:
			if apiKey != "" {
				return providerConfig{}, fmt.Errorf("an API key was given without a provider: use --provider to select one")
			}
			return providerConfig{}, fmt.Errorf("no API key found: set OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY (or use --provider and --api-key)")
		case 1:
			name = found[0]
		default:
			vars := make([]string, len(found))
			for i, n := range found {
				vars[i] = keyEnv[n]
			}
			return providerConfig{}, fmt.Errorf("multiple API keys found (%s): use --provider to select", strings.Join(vars, ", "))
		}
	}

	env, ok := keyEnv[name]
	if !ok {
		return providerConfig{}, fmt.Errorf("unknown provider %q: must be \"openai\", \"anthropic\" or \"gemini\"", name)
	}
	key := apiKey
	if key == "" {
		key = envKeys[name]
	}
	if key == "" {
		return providerConfig{}, fmt.Errorf("%s not set (use --api-key or the environment variable)", env)
	}
	return providerConfig{name: name, key: key}, nil
}

// newProvider constructs the client for pc. baseURL is ignored when empty.
func newProvider(pc providerConfig, baseURL string, hc *http.Client, logger zerolog.Logger) relay.Provider {
	logger = logger.With().Str("provider", pc.name).Logger()
	switch pc.name {
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithHTTPClient(hc), anthropic.WithLogger(logger)}
		if baseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(baseURL))
		}
		return anthropic.New(pc.key, opts...)
	case "gemini":
		opts := []gemini.Option{gemini.WithHTTPClient(hc), gemini.WithLogger(logger)}
		if baseURL != "" {
			opts = append(opts, gemini.WithBaseURL(baseURL))
		}
		return gemini.New(pc.key, opts...)
	default:
		opts := []openai.Option{openai.WithHTTPClient(hc), openai.WithLogger(logger)}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(pc.key, opts...)
	}
}
