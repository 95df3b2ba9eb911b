package carrier

import (
	"net/url"
	"strings"
)

const (
	ProviderUSPS  = "usps"
	ProviderFedEx = "fedex"
	ProviderUPS   = "ups"
	ProviderOther = "other"
)

// NormalizeProvider returns a canonical provider key for known carriers, or
// ProviderOther for anything else that is non-empty.
func NormalizeProvider(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "", ".", "").Replace(normalized)

	switch normalized {
	case "":
		return ""
	case "usps", "unitedstatespostalservice", "stampscom":
		return ProviderUSPS
	case "fedex", "federalexpress":
		return ProviderFedEx
	case "ups", "unitedparcelservice":
		return ProviderUPS
	default:
		return ProviderOther
	}
}

// DisplayName maps known carriers to their display name and keeps custom ones untouched.
func DisplayName(carrier string) string {
	switch NormalizeProvider(carrier) {
	case ProviderUSPS:
		return "USPS"
	case ProviderFedEx:
		return "FedEx"
	case ProviderUPS:
		return "UPS"
	default:
		return strings.TrimSpace(carrier)
	}
}

// TrackingURL returns a carrier tracking page. Unknown carriers return empty.
func TrackingURL(carrier, trackingNumber string) string {
	number := strings.TrimSpace(trackingNumber)
	if number == "" {
		return ""
	}

	escaped := url.QueryEscape(number)
	switch NormalizeProvider(carrier) {
	case ProviderUSPS:
		return "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + escaped
	case ProviderFedEx:
		return "https://www.fedex.com/fedextrack/?trknbr=" + escaped
	case ProviderUPS:
		return "https://www.ups.com/track?tracknum=" + escaped
	default:
		return ""
	}
}
