package modelprovider

import "github.com/xonecas/symbrt/message"

// CalculateCost derives a Cost from token counts and a model's
// per-million-token rates. Shared by every Provider implementation's
// CalculateCost so the arithmetic lives in one place.
func CalculateCost(model Model, usage message.Usage) message.Cost {
	c := message.Cost{
		Input:      float64(usage.Input) * model.CostPerMInput / 1_000_000,
		Output:     float64(usage.Output) * model.CostPerMOutput / 1_000_000,
		CacheRead:  float64(usage.CacheRead) * model.CostPerMCacheRead / 1_000_000,
		CacheWrite: float64(usage.CacheWrite) * model.CostPerMCacheWrite / 1_000_000,
	}
	c.Total = c.Input + c.Output + c.CacheRead + c.CacheWrite
	return c
}

// TotalTokens returns input+output+cacheRead+cacheWrite.
func TotalTokens(u message.Usage) int {
	return u.Input + u.Output + u.CacheRead + u.CacheWrite
}
