package core

import "strings"

const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	Unknown       = "unknown"
)

// Facets are the coarse client properties stored with each click.
type Facets struct {
	Device  string
	Browser string
	OS      string
}

type uaRule struct {
	needle string
	name   string
}

// First match wins, so Chrome must stay ahead of Safari (Chrome user agents
// also contain "Safari").
var (
	mobileMarkers = []string{"Mobile", "Android", "iPhone", "iPad"}

	browserRules = []uaRule{
		{"Chrome", "Chrome"},
		{"Firefox", "Firefox"},
		{"Safari", "Safari"},
		{"Edge", "Edge"},
	}

	osRules = []uaRule{
		{"Windows", "Windows"},
		{"Mac", "macOS"},
		{"Linux", "Linux"},
		{"Android", "Android"},
		{"iOS", "iOS"},
	}
)

func ParseUserAgent(ua string) Facets {
	f := Facets{Device: DeviceDesktop, Browser: firstMatch(ua, browserRules), OS: firstMatch(ua, osRules)}
	for _, m := range mobileMarkers {
		if strings.Contains(ua, m) {
			f.Device = DeviceMobile
			break
		}
	}
	return f
}

func firstMatch(ua string, rules []uaRule) string {
	for _, r := range rules {
		if strings.Contains(ua, r.needle) {
			return r.name
		}
	}
	return Unknown
}
