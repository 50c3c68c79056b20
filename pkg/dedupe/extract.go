package dedupe

import "regexp"

// chatTextPatterns match "<prefix>[<slug>] <text>", tried in order. The
// bold form is what the relay formatter emits and wins over bracketed text
// in a configured prefix. The general form allows any markdown emphasis
// around the slug. Prefixes are matched lazily so that brackets inside the
// payload never shift the slug boundary.
var chatTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)^(?P<prefix>.*?)(?P<slug>\*\*\[[^\]\n]+\]\*\*) (?P<text>.+)$`),
	regexp.MustCompile(`(?s)^(?P<prefix>.*?)(?P<slug>[*_]{0,3}\[[^\]\n]+\][*_]{0,3}) (?P<text>.+)$`),
}

// ExtractChatText returns the payload of a formatted message body, or "" if
// raw does not follow the prefix/slug/text layout.
func ExtractChatText(raw string) string {
	for _, re := range chatTextPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			return m[re.SubexpIndex("text")]
		}
	}
	return ""
}
