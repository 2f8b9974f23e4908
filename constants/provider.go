package constants

import "strings"

var providerDisplayNames = map[string]string{
	"aws":          "AWS",
	"azure":        "Azure",
	"gcp":          "GCP",
	"github":       "GitHub",
	"kubernetes":   "Kubernetes",
	"m365":         "M365",
	"nhn":          "NHN",
	"oraclecloud":  "OracleCloud",
	"alibabacloud": "alibabacloud",
}

// ProviderDisplayName returns the canonical display name written into mapping outputs.
// Unknown providers pass through unchanged.
func ProviderDisplayName(provider string) string {
	if name, ok := providerDisplayNames[strings.ToLower(provider)]; ok {
		return name
	}
	return provider
}
