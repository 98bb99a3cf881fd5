package llm

import "fmt"

type ProviderConfig struct {
	Provider  string // anthropic, openai, ollama
	APIKey    string
	AuthToken string // OAuth token (Bearer auth)
	Model     string
	BaseURL   string // openai-compatible endpoint; only ollama uses it
}

// NewClient builds the client for cfg.Provider. Hosted providers need
// credentials; ollama needs only a reachable base URL.
func NewClient(cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" && cfg.AuthToken == "" {
			return nil, fmt.Errorf("anthropic provider needs ANTHROPIC_API_KEY or ANTHROPIC_AUTH_TOKEN")
		}
		return NewAnthropicClient(cfg.APIKey, cfg.AuthToken, cfg.Model), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider needs OPENAI_API_KEY")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model, ""), nil
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = "llama3.1"
		}
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ollama provider needs OLLAMA_BASE_URL")
		}
		return NewOpenAIClient("ollama", cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
