package domain

import (
	"net/url"
	"strings"
)

// Platform identifies the video-call product a session runs on. It is advisory
// metadata; any value, including ones not listed here, is passed through.
type Platform string

const (
	PlatformGoogleMeet Platform = "Google Meet"
	PlatformZoom       Platform = "Zoom"
	PlatformTeams      Platform = "Microsoft Teams"
	PlatformWebex      Platform = "Webex"
	PlatformUnknown    Platform = "unknown"
)

var platformHosts = []struct {
	suffix   string
	platform Platform
}{
	{"meet.google.com", PlatformGoogleMeet},
	{"zoom.us", PlatformZoom},
	{"zoom.com", PlatformZoom},
	{"teams.microsoft.com", PlatformTeams},
	{"teams.live.com", PlatformTeams},
	{"webex.com", PlatformWebex},
}

// DetectPlatform maps a page URL to a known platform by hostname.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range platformHosts {
		if host == h.suffix || strings.HasSuffix(host, "."+h.suffix) {
			return h.platform
		}
	}
	return PlatformUnknown
}
