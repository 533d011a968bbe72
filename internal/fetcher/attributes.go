package fetcher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/voyagen/channelvault/internal/models"
)

var (
	reAttribute  = regexp.MustCompile(`(\w+(?:-\w+)*)="([^"]*)"`)
	reWhitespace = regexp.MustCompile(`[\s\p{Z}]+`)
)

// ParseEXTINF extracts the channel skeleton from one #EXTINF line: key="value"
// attributes and the display name after the last comma. It never fails; the
// stream URL is left for the caller to fill in.
func ParseEXTINF(line string) models.ChannelCandidate {
	var c models.ChannelCandidate
	for _, m := range reAttribute.FindAllStringSubmatch(line, -1) {
		assignAttribute(&c, normalizeKey(m[1]), m[2])
	}
	c.Name = displayName(line)
	return c
}

// normalizeKey maps "group-title" and "Group-Title" to "group_title".
func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "-", "_"))
}

func assignAttribute(c *models.ChannelCandidate, key, value string) {
	v := strings.TrimSpace(value)
	if v == "" {
		return
	}
	switch key {
	case "tvg_id":
		c.TvgID = &v
	case "tvg_name":
		c.TvgName = &v
	case "tvg_logo":
		c.TvgLogo = &v
		logo := v
		c.LogoURL = &logo
	case "group_title":
		c.GroupTitle = &v
		category := v
		c.Category = &category
	case "tvg_country", "country":
		c.Country = &v
	case "tvg_language", "language":
		c.Language = &v
	}
}

// displayName defaults only when there is no text after the last comma. Text
// that sanitizes to nothing yields "" so validation rejects the channel.
func displayName(line string) string {
	i := strings.LastIndex(line, ",")
	if i < 0 || i == len(line)-1 {
		return models.DefaultChannelName
	}
	return sanitizeName(line[i+1:])
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(reWhitespace.ReplaceAllString(name, " "))
	if utf8.RuneCountInString(name) > models.MaxNameLength {
		name = string([]rune(name)[:models.MaxNameLength])
	}
	return strings.TrimSpace(name)
}
