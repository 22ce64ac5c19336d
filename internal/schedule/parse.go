package schedule

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// index_show reads like "E12 updated" once an episode is out, or
	// "18:00 E12" while it is still upcoming. Ranges ("E11-12 updated")
	// appear when several episodes land at once.
	episodePattern = regexp.MustCompile(`E(\d+)(?:-(\d+))?`)
	airTimePattern = regexp.MustCompile(`\d{2}:\d{2}`)

	// Series pages live at /xx/media/{id}, episodes at /xx/play/{id}[/{ep}].
	seriesURLPattern = regexp.MustCompile(`bilibili\.tv/[a-zA-Z_-]+/(?:media|play)/(\d+)`)
)

// ParseSeriesID extracts the series ID from a media or play URL, or returns
// the input unchanged when it is already a bare numeric ID. Returns ok=false
// for anything else.
func ParseSeriesID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}

	if m := seriesURLPattern.FindStringSubmatch(input); m != nil {
		return m[1], true
	}

	for _, r := range input {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return input, true
}

// isReleased reports whether the card describes an already-aired episode.
func isReleased(indexShow string) bool {
	return strings.HasSuffix(strings.TrimSpace(indexShow), "updated")
}

// airTime extracts the scheduled air time from an upcoming card, or "" when
// none is shown.
func airTime(indexShow string) string {
	return airTimePattern.FindString(indexShow)
}

// parseEpisodeSpan extracts the episode number range from an index_show
// label. Single episodes yield from == to. Returns ok=false when the label
// carries no episode number (previews, specials, movies).
func parseEpisodeSpan(indexShow string) (from, to int, ok bool) {
	m := episodePattern.FindStringSubmatch(indexShow)
	if m == nil {
		return 0, 0, false
	}

	from, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}

	to = from
	if m[2] != "" {
		if to, err = strconv.Atoi(m[2]); err != nil || to < from {
			return 0, 0, false
		}
	}

	return from, to, true
}
