// Package attachments classifies a task's raw attachment list and inline
// body images into the kinds the synchronization engine can deliver.
package attachments

import (
	"regexp"
	"strings"

	"github.com/fleetline/taskbridge/internal/tasks"
)

// Kind classifies how an attachment lands in chat.
type Kind string

const (
	// KindImage is a platform-native photo.
	KindImage Kind = "image"
	// KindUnsupportedImage is sent as a document: oversized, unsupported
	// MIME, or any non-media file.
	KindUnsupportedImage Kind = "unsupported-image"
	// KindYouTube is delivered as a link card.
	KindYouTube Kind = "youtube"
)

// Normalized is one classified attachment.
type Normalized struct {
	Kind   Kind
	URL    string
	Name   string
	Mime   string
	Size   int64
	FileID string
	Inline bool
}

// Set is the normalizer output consumed by the reconciler.
type Set struct {
	// Preview is the first image found, inline body images first.
	Preview *Normalized
	// Album holds the image-kind entries, capped at the album maximum.
	Album []Normalized
	// Extras are delivered as a separate burst: images beyond the album
	// cap followed by documents and link cards, in source order.
	Extras []Normalized
}

// photoMimes is the platform's photo allow-list. Anything else goes out
// as a document.
var photoMimes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

var youtubePattern = regexp.MustCompile(`(?i)(?:^|//|\.)(?:youtube\.com/(?:watch|shorts|embed)|youtu\.be/)`)

// IsVideoLink reports whether the URL points at a known video host.
func IsVideoLink(url string) bool {
	return youtubePattern.MatchString(url)
}

// InlineViewURL renders the public view link for an inline body image.
func InlineViewURL(baseURL, fileID string) string {
	return strings.TrimRight(baseURL, "/") + "/files/" + fileID + "/view"
}

// Normalize classifies the task attachments plus the inline image refs
// extracted from the formatted body. Inline refs that are not absolute
// URLs are treated as stored-file ids and converted to view URLs.
// Deduplication is by (kind, url), first seen wins; the album is capped
// at maxAlbum entries.
func Normalize(atts []tasks.Attachment, inline []string, baseURL string, photoLimit int64, maxAlbum int) Set {
	seen := make(map[string]bool)
	var all []Normalized

	add := func(n Normalized) {
		key := string(n.Kind) + "\x00" + n.URL
		if n.URL == "" || seen[key] {
			return
		}
		seen[key] = true
		all = append(all, n)
	}

	// Inline body images are always photo-eligible.
	for _, ref := range inline {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		entry := Normalized{Kind: KindImage, Inline: true}
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			entry.URL = ref
		} else {
			entry.FileID = ref
			entry.URL = InlineViewURL(baseURL, ref)
		}
		add(entry)
	}

	for _, att := range atts {
		url := strings.TrimSpace(att.URL)
		if url == "" {
			continue
		}
		entry := Normalized{
			URL:    url,
			Name:   att.Name,
			Mime:   strings.ToLower(strings.TrimSpace(att.Mime)),
			Size:   att.Size,
			FileID: strings.TrimSpace(att.FileID),
		}
		// Video-host links win over whatever MIME the uploader declared.
		switch {
		case IsVideoLink(url):
			entry.Kind = KindYouTube
		case photoMimes[entry.Mime]:
			entry.Kind = KindImage
			// Oversized with no local file to recompress: ship as document.
			if photoLimit > 0 && entry.Size > photoLimit && entry.FileID == "" {
				entry.Kind = KindUnsupportedImage
			}
		default:
			entry.Kind = KindUnsupportedImage
		}
		add(entry)
	}

	return buildSet(all, maxAlbum)
}

func buildSet(all []Normalized, maxAlbum int) Set {
	var set Set
	imageCount := 0
	for i := range all {
		entry := all[i]
		if entry.Kind == KindImage {
			if set.Preview == nil {
				preview := entry
				set.Preview = &preview
			}
			if maxAlbum <= 0 || imageCount < maxAlbum {
				set.Album = append(set.Album, entry)
			} else {
				set.Extras = append(set.Extras, entry)
			}
			imageCount++
			continue
		}
		set.Extras = append(set.Extras, entry)
	}
	return set
}
