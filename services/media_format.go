package services

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type MediaFormat string

const (
	Video    MediaFormat = "video"
	Subtitle MediaFormat = "subtitle"
	Image    MediaFormat = "image"
	Metadata MediaFormat = "metadata"
	Unknown  MediaFormat = "unknown"
)

var formats = map[MediaFormat][]string{
	Video:    {"mp4", "mkv", "avi", "ts", "m4v", "webm", "vob", "flv", "wmv", "mpg", "mov", "rmvb", "iso"},
	Subtitle: {"srt", "ass", "ssa", "sub", "vtt"},
	Image:    {"jpg", "jpeg", "png"},
	Metadata: {"nfo"},
}

func getMediaFormatByExt(ext string) MediaFormat {
	for f, e := range formats {
		for _, ee := range e {
			if ee == ext {
				return f
			}
		}
	}
	return Unknown
}

func defaultExts(f MediaFormat) []string {
	return formats[f]
}

// defaultAltExts is everything downloaded verbatim next to placeholders:
// subtitles, artwork and metadata.
func defaultAltExts() []string {
	var exts []string
	for _, f := range []MediaFormat{Subtitle, Image, Metadata} {
		exts = append(exts, formats[f]...)
	}
	return exts
}

// extOf returns the lowercased extension of name without the dot.
func extOf(name string) string {
	return strings.ToLower(strings.TrimLeft(filepath.Ext(name), "."))
}

// makeExtSet parses a comma-separated extension list into a lookup set.
// Empty input yields the given defaults.
func makeExtSet(s string, def []string) map[string]bool {
	exts := def
	if strings.TrimSpace(s) != "" {
		exts = strings.Split(s, ",")
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(strings.TrimLeft(e, ".")))
		if e != "" {
			m[e] = true
		}
	}
	return m
}

// subtitleLanguage extracts a language tag from names like "movie.en.srt"
// and returns its display name, or "" when the name carries no tag.
func subtitleLanguage(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(base, ".")
	if i == -1 || i == len(base)-1 {
		return ""
	}
	tag, err := language.Parse(base[i+1:])
	if err != nil {
		return ""
	}
	return display.English.Languages().Name(tag)
}
