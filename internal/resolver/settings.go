package resolver

import (
	"github.com/nimbleworks/chatrelay/internal/domain"
)

// Sampling defaults applied when the caller leaves a field unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
	DefaultTopP        = 1.0
	DefaultPenalty     = 0.0
	DefaultTool        = "none"
	DefaultPersonality = "equilibrada"
)

// personalityTemperatures maps a named personality to its sampling
// temperature. Unknown personalities fall back to DefaultTemperature.
var personalityTemperatures = map[string]float64{
	"tecnica":     0.1,
	"formal":      0.4,
	"equilibrada": 0.7,
	"criativa":    0.9,
	"divertida":   1.0,
}

// TemperatureForPersonality returns the temperature for a named personality,
// or DefaultTemperature when the label is unrecognized.
func TemperatureForPersonality(personality string) float64 {
	if temp, ok := personalityTemperatures[personality]; ok {
		return temp
	}
	return DefaultTemperature
}

// ResolveSettings fills every field of a partial ChatSettings. It is pure
// and total: any input, including the zero value, yields a fully populated
// configuration and it never fails.
//
// An explicit caller temperature wins over the personality table.
func ResolveSettings(partial domain.ChatSettings) domain.ChatSettings {
	resolved := partial

	if resolved.Model == "" {
		resolved.Model = DefaultModel
	}
	resolved.RemoteModel = ToRemoteModel(resolved.Model)
	if resolved.Provider == "" {
		resolved.Provider = ProviderOf(resolved.Model)
	}
	if resolved.Tool == "" {
		resolved.Tool = DefaultTool
	}
	if resolved.Personality == "" {
		resolved.Personality = DefaultPersonality
	}
	if resolved.Temperature == nil {
		temp := TemperatureForPersonality(resolved.Personality)
		resolved.Temperature = &temp
	}
	if resolved.MaxTokens == 0 {
		resolved.MaxTokens = DefaultMaxTokens
	}
	if resolved.TopP == nil {
		topP := DefaultTopP
		resolved.TopP = &topP
	}
	if resolved.FrequencyPenalty == nil {
		penalty := DefaultPenalty
		resolved.FrequencyPenalty = &penalty
	}
	if resolved.PresencePenalty == nil {
		penalty := DefaultPenalty
		resolved.PresencePenalty = &penalty
	}

	return resolved
}
