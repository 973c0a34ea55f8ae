package llm

// ═══════════════════════════════════════════════════════════════════════════════
// COST RATES (per million tokens)
// ═══════════════════════════════════════════════════════════════════════════════

// ProviderCostRates defines cost per million tokens for each provider.
type ProviderCostRates struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CostRates maps provider names to their token costs (USD per million tokens).
// Local providers are free.
var CostRates = map[string]ProviderCostRates{
	"pattern": {0.0, 0.0},
	"neural":  {0.0, 0.0},
	"ollama":  {0.0, 0.0},
	"local":   {0.0, 0.0},

	"openai":     {0.15, 0.60}, // gpt-4o-mini
	"groq":       {0.05, 0.08},
	"openrouter": {1.00, 2.00}, // varies by model
	"anthropic":  {3.00, 15.00},
	"gemini":     {0.075, 0.30},
}

// GetCostRate returns the cost rate for a provider.
func GetCostRate(provider string) ProviderCostRates {
	if rate, ok := CostRates[provider]; ok {
		return rate
	}
	// Unknown provider - assume moderate cloud pricing
	return ProviderCostRates{1.0, 2.0}
}

// IsLocalProvider returns true if the provider runs on this machine.
func IsLocalProvider(provider string) bool {
	switch provider {
	case "pattern", "neural", "ollama", "local":
		return true
	default:
		return false
	}
}

// EstimateTokens approximates the token count of text (about four bytes a token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// PriceTokens prices a call for provider.
func PriceTokens(provider string, input, output int) float64 {
	rates := GetCostRate(provider)
	return float64(input)/1_000_000.0*rates.InputPerMillion +
		float64(output)/1_000_000.0*rates.OutputPerMillion
}
