// Package modelfactory creates an llm.Model by provider (used at server startup).
package modelfactory

import (
	"errors"
	"fmt"
	"time"

	"github.com/omniassist/server/llm"
	"github.com/omniassist/server/llm/gemini"
	"github.com/omniassist/server/llm/openaicompat"
)

var (
	errUnknownProvider = errors.New("unknown model provider")
	errMissingAPIKey   = errors.New("missing API key")
)

type Options struct {
	Provider llm.Provider
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// New returns an instrumented Model for opts.Provider. Gemini requires an API
// key; OpenAI-compatible endpoints may be unauthenticated.
func New(opts Options) (llm.Model, error) {
	if !opts.Provider.IsValid() {
		return nil, fmt.Errorf("%w: %q", errUnknownProvider, opts.Provider)
	}
	switch opts.Provider {
	case llm.ProviderGemini:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w for %s", errMissingAPIKey, opts.Provider)
		}
		return llm.Instrument(string(opts.Provider), gemini.New(gemini.Config{
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			BaseURL: opts.Endpoint,
			Timeout: opts.Timeout,
		})), nil
	case llm.ProviderOpenAI:
		return llm.Instrument(string(opts.Provider), openaicompat.New(openaicompat.Config{
			Endpoint: opts.Endpoint,
			APIKey:   opts.APIKey,
			Model:    opts.Model,
			Timeout:  opts.Timeout,
		})), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownProvider, opts.Provider)
	}
}
