package logindetails

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseAgent returns browser ("Firefox 121.0") and device ("Desktop (Linux)",
// "Mobile (iPhone)", "Tablet (iPad)") descriptions for a User-Agent header.
func ParseAgent(header string) (string, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return BrowserUnknown, DeviceUnknown
	}
	ua := useragent.New(header)
	if ua.Bot() {
		name, _ := ua.Browser()
		if name == "" {
			name = BrowserUnknown
		}
		return name, "Bot"
	}

	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + version)
	if name == "" {
		browser = BrowserUnknown
	}

	platform := ua.Platform()
	osName := ua.OS()
	lower := strings.ToLower(header)
	switch {
	case platform == "iPad" || (strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")) || strings.Contains(lower, "tablet"):
		return browser, "Tablet (" + deviceName(platform, osName, "Tablet") + ")"
	case ua.Mobile():
		return browser, "Mobile (" + deviceName(platform, osName, "Mobile") + ")"
	case osName != "":
		return browser, "Desktop (" + osName + ")"
	default:
		return browser, DeviceUnknown
	}
}

func deviceName(platform, osName, fallback string) string {
	switch {
	case platform == "iPhone" || platform == "iPad" || platform == "iPod":
		return platform
	case strings.HasPrefix(osName, "Android"):
		return "Android"
	case platform != "" && platform != "Linux":
		return platform
	default:
		return fallback
	}
}
