package fingerprint

import (
	"fmt"
	"regexp"
	"strings"
)

// Tagger reduces a user-agent string to a coarse "browser family + major
// version" tag used by the system similarity component. The matching rules
// encode product judgment, so callers may swap in their own strategy.
type Tagger func(userAgent string) string

var (
	chromeVersion  = regexp.MustCompile(`chrome/(\d+)`)
	firefoxVersion = regexp.MustCompile(`firefox/(\d+)`)
	safariVersion  = regexp.MustCompile(`version/(\d+)`)
	edgeVersion    = regexp.MustCompile(`edge/(\d+)`)
)

// DefaultTagger recognizes Chrome, Firefox, Safari and legacy Edge by major
// version. Anything else tags as "unknown".
func DefaultTagger(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "chrome"):
		if m := chromeVersion.FindStringSubmatch(ua); m != nil {
			return fmt.Sprintf("chrome_%s", m[1])
		}
	case strings.Contains(ua, "firefox"):
		if m := firefoxVersion.FindStringSubmatch(ua); m != nil {
			return fmt.Sprintf("firefox_%s", m[1])
		}
	case strings.Contains(ua, "safari"):
		if m := safariVersion.FindStringSubmatch(ua); m != nil {
			return fmt.Sprintf("safari_%s", m[1])
		}
	case strings.Contains(ua, "edge"):
		if m := edgeVersion.FindStringSubmatch(ua); m != nil {
			return fmt.Sprintf("edge_%s", m[1])
		}
	}

	return "unknown"
}
