package liveshelf

import (
	"net/url"
	"strings"

	"github.com/liveshelf/liveshelf/models"
)

// classifySite determines the site classification for a page. An og:site_name
// value takes precedence: "x" or anything containing "twitter" maps to the
// matching social variant, everything else to other. Without one the hostname
// decides; an unparsable URL classifies as unknown.
func classifySite(siteName, targetURL string) models.Site {
	if siteName != "" {
		lower := strings.ToLower(siteName)
		if lower == "x" || strings.Contains(lower, "twitter") {
			if strings.Contains(targetURL, "x.com") {
				return models.SiteX
			}
			return models.SiteTwitter
		}
		return models.SiteOther
	}

	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return models.SiteUnknown
	}

	host := u.Hostname()
	switch {
	case strings.Contains(host, "twitter.com"):
		return models.SiteTwitter
	case strings.Contains(host, "x.com"):
		return models.SiteX
	default:
		return models.SiteOther
	}
}
