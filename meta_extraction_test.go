package liveshelf

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/liveshelf/liveshelf/models"
)

func parseDoc(t *testing.T, doc string) pageMeta {
	t.Helper()
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return extractMeta(node)
}

func TestTitlePriority(t *testing.T) {
	tests := []struct {
		name     string
		htmlDoc  string
		expected string
	}{
		{
			name: "og:title takes precedence over title tag",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="OG Wins" />
	<title>Plain Title</title>
</head>
<body></body>
</html>`,
			expected: "OG Wins",
		},
		{
			name: "twitter:title takes precedence over title tag",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta name="twitter:title" content="Twitter Wins" />
	<title>Plain Title</title>
</head>
<body></body>
</html>`,
			expected: "Twitter Wins",
		},
		{
			name: "og:title takes precedence over twitter:title",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="OG Wins" />
	<meta name="twitter:title" content="Twitter Title" />
	<title>Plain Title</title>
</head>
<body></body>
</html>`,
			expected: "OG Wins",
		},
		{
			name: "title tag as final fallback",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<title>Plain Title</title>
</head>
<body></body>
</html>`,
			expected: "Plain Title",
		},
		{
			name:     "no title anywhere",
			htmlDoc:  `<html><head></head><body><p>nothing</p></body></html>`,
			expected: "",
		},
		{
			name: "first og:title wins over later ones",
			htmlDoc: `<html><head>
	<meta property="og:title" content="First" />
	<meta property="og:title" content="Second" />
</head></html>`,
			expected: "First",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := parseDoc(t, tt.htmlDoc)
			title := firstNonEmptyString(meta.ogTitle, meta.twitterTitle, meta.htmlTitle)
			if title != tt.expected {
				t.Errorf("title = %q, want %q", title, tt.expected)
			}
		})
	}
}

func TestDescriptionAndAuthorExtraction(t *testing.T) {
	meta := parseDoc(t, `<html><head>
	<meta name="description" content="generic description" />
	<meta property="og:description" content="og description" />
	<meta name="twitter:creator" content="@creator" />
</head></html>`)

	desc := firstNonEmptyString(meta.ogDescription, meta.twitterDescription, meta.description)
	if desc != "og description" {
		t.Errorf("description = %q, want og description", desc)
	}
	author := firstNonEmptyString(meta.author, meta.twitterCreator)
	if author != "@creator" {
		t.Errorf("author = %q, want @creator", author)
	}
}

func TestMetaContentRequired(t *testing.T) {
	meta := parseDoc(t, `<html><head>
	<meta property="og:title" content="" />
	<meta name="twitter:title" content="Fallback" />
</head></html>`)

	title := firstNonEmptyString(meta.ogTitle, meta.twitterTitle, meta.htmlTitle)
	if title != "Fallback" {
		t.Errorf("title = %q, want Fallback", title)
	}
}

func TestTruncatedDocumentStillParses(t *testing.T) {
	// A document cut off mid-tag, as after the body cap, still yields the
	// metadata seen before the cut.
	meta := parseDoc(t, `<html><head>
	<meta property="og:title" content="Survivor" />
	<meta property="og:image" content="https://cdn.example/a.jpg" />
	<p>body text that got trunc`)

	if meta.ogTitle != "Survivor" {
		t.Errorf("ogTitle = %q, want Survivor", meta.ogTitle)
	}
	if meta.ogImage != "https://cdn.example/a.jpg" {
		t.Errorf("ogImage = %q", meta.ogImage)
	}
}

func TestClassifySite(t *testing.T) {
	tests := []struct {
		name      string
		siteName  string
		targetURL string
		expected  models.Site
	}{
		{"og:site_name X", "X", "https://x.com/i/broadcasts/a", models.SiteX},
		{"og:site_name Twitter", "Twitter", "https://twitter.com/i/broadcasts/a", models.SiteTwitter},
		{"og:site_name twitter on x.com url", "Twitter", "https://x.com/i/broadcasts/a", models.SiteX},
		{"og:site_name other", "Example Streams", "https://example.com/p", models.SiteOther},
		{"hostname twitter", "", "https://twitter.com/p", models.SiteTwitter},
		{"hostname x", "", "https://x.com/p", models.SiteX},
		{"hostname other", "", "https://example.com/p", models.SiteOther},
		{"unparsable url", "", "://not a url", models.SiteUnknown},
		{"empty url", "", "", models.SiteUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifySite(tt.siteName, tt.targetURL); got != tt.expected {
				t.Errorf("classifySite(%q, %q) = %q, want %q", tt.siteName, tt.targetURL, got, tt.expected)
			}
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	title := models.String("t")
	image := models.String("i")

	if got := deriveStatus(title, image); got != models.FetchStatusSuccess {
		t.Errorf("both present = %q, want success", got)
	}
	if got := deriveStatus(title, nil); got != models.FetchStatusPartial {
		t.Errorf("title only = %q, want partial", got)
	}
	if got := deriveStatus(nil, image); got != models.FetchStatusPartial {
		t.Errorf("image only = %q, want partial", got)
	}
	if got := deriveStatus(nil, nil); got != models.FetchStatusFail {
		t.Errorf("neither = %q, want fail", got)
	}
}
