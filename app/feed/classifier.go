package feed

import (
	"mime"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

var mediaKinds = map[string]Kind{
	"application/atom+xml": KindText,
	"application/rss+xml":  KindText,
	"application/xml":      KindText,
	"text/xml":             KindText,
	// Misconfigured servers often label feeds as HTML; the parser decides.
	"text/html":             KindText,
	"application/json":      KindJSON,
	"application/feed+json": KindJSON,
}

// Classify maps a declared Content-Type to the way its body should be read.
func Classify(contentType string) Kind {
	mediaType := strings.TrimSpace(contentType)
	if mediaType == "" {
		return KindUnknown
	}

	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	} else if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}

	return mediaKinds[strings.ToLower(strings.TrimSpace(mediaType))]
}
