package llm

// Provider identifies which model backend to use (single choice at server startup).
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

const DefaultProvider Provider = ProviderGemini

// IsValid returns true if the provider is supported.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGemini, ProviderOpenAI:
		return true
	default:
		return false
	}
}

// DefaultModel returns the model name used when none is configured.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "gemini-2.0-flash"
	}
}
