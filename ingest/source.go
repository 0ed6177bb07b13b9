package ingest

import (
	"net/url"
	"regexp"
	"strings"

	"imgdrop/common"
)

const (
	// TrustedPrefix is the only image origin accepted. It is not configurable.
	TrustedPrefix = "https://pbs.twimg.com/"

	// TransientScheme marks page-local object URLs that cannot be fetched again.
	TransientScheme = "blob:"

	// SizeParam selects the published rendition; LargestSize is its biggest value.
	SizeParam   = "name"
	LargestSize = "large"
)

var imgSrcPattern = regexp.MustCompile(`<img[^>]+src="([^">]+)"`)

// ExtractImageReference returns the src of the image tag that starts the
// payload's HTML entry. Only a fragment beginning with "<img" qualifies.
func ExtractImageReference(p DragPayload) (string, Outcome) {
	if !p.HTML.Present || p.HTML.Value == "" {
		return "", OutcomeNoHTML
	}
	if !strings.HasPrefix(p.HTML.Value, "<img") {
		return "", OutcomeNotImageTag
	}

	match := imgSrcPattern.FindStringSubmatch(p.HTML.Value)
	if match == nil {
		return "", OutcomeNoSource
	}

	src := match[1]
	if strings.HasPrefix(src, TransientScheme) {
		return "", OutcomeTransientSource
	}
	return src, OutcomeAccepted
}

// AuthorizeSource accepts only references on the trusted image host.
func AuthorizeSource(ref string) Outcome {
	if !strings.HasPrefix(ref, TrustedPrefix) {
		return OutcomeUntrustedOrigin
	}
	return OutcomeAccepted
}

// Canonicalize rewrites ref so that it points at the largest rendition.
// Query parameters keep their order and raw form; only the size parameter
// changes. The fragment is dropped.
func Canonicalize(ref string) (string, error) {
	u, err := url.Parse(strings.ReplaceAll(ref, "&amp;", "&"))
	if err != nil {
		return "", common.Wrap(common.KindRejected, "ingest.canonicalize", "parse image url", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", common.New(common.KindRejected, "ingest.canonicalize", "image url is not absolute")
	}

	var params []string
	for _, segment := range strings.Split(u.RawQuery, "&") {
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		if unescapeParam(key) == SizeParam {
			value = LargestSize
		}
		params = append(params, key+"="+value)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(path)
	if len(params) > 0 {
		b.WriteString("?")
		b.WriteString(strings.Join(params, "&"))
	}
	return b.String(), nil
}

func unescapeParam(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

// SuggestedFilename derives the save-dialog name from a canonical URL: the
// last path segment, cut at the query, without its leading dotted prefix.
// "https://h/p/abc.name.jpg?name=large" gives "name.jpg".
func SuggestedFilename(canonical string) string {
	name := canonical[strings.LastIndex(canonical, "/")+1:]
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
