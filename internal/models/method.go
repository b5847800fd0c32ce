package models

import "fmt"

// ExtractionMethod selects the per-run image extraction strategy
type ExtractionMethod string

const (
	MethodHighQuality   ExtractionMethod = "high_quality"
	MethodMediumQuality ExtractionMethod = "medium_quality"
	MethodEmbedded      ExtractionMethod = "embedded"
	MethodCombined      ExtractionMethod = "combined"
)

// ParseExtractionMethod validates a method name from config or flags
func ParseExtractionMethod(s string) (ExtractionMethod, error) {
	switch ExtractionMethod(s) {
	case MethodHighQuality, MethodMediumQuality, MethodEmbedded, MethodCombined:
		return ExtractionMethod(s), nil
	case "":
		return MethodHighQuality, nil
	default:
		return "", fmt.Errorf("unknown extraction method: %q", s)
	}
}
