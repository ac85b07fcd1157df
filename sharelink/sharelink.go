// Package sharelink rewrites cloud-drive share links into URLs that serve
// the image bytes directly.
//
// Users paste whatever their drive's "share" button produced; those pages
// are HTML viewers, not images. Normalize recognizes the common link shapes
// and returns a thumbnail URL the image loader can fetch.
package sharelink

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ThumbnailWidth is the width requested from the thumbnail endpoint.
const ThumbnailWidth = 1000

var (
	filePathRe = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	idParamRe  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	bareIDRe   = regexp.MustCompile(`^[a-zA-Z0-9_-]{25,}$`)
)

// FileID extracts the drive file ID from link. It recognizes
// ".../file/d/<id>/...", "...?id=<id>" or "...&id=<id>" (which covers
// "open?id=" and "uc?export=view&id=" links) and a bare ID of at least 25
// characters.
func FileID(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}
	if m := filePathRe.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	if m := idParamRe.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	if bareIDRe.MatchString(link) {
		return link, true
	}
	return "", false
}

// Thumbnail returns the direct thumbnail URL for a drive file ID.
func Thumbnail(id string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("sz", "w"+strconv.Itoa(ThumbnailWidth))
	return "https://drive.google.com/thumbnail?" + q.Encode()
}

// Normalize returns the direct image URL for link. Links that are not
// recognized as drive links are returned trimmed but otherwise unchanged;
// an empty link yields "".
func Normalize(link string) string {
	link = strings.TrimSpace(link)
	if id, ok := FileID(link); ok {
		return Thumbnail(id)
	}
	return link
}
