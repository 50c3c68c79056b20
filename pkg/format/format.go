// Package format renders game chat events into messages for the relay
// channel: an optional prefix, the emphasized bracketed chat-type slug, a
// space, then the chat text.
package format

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
)

// ErrEmptyMessage is returned for events with no chat text.
var ErrEmptyMessage = errors.New("empty chat message")

// PartyFinderType is the chat type the duty finder prefix applies to.
const PartyFinderType = "party_finder"

const (
	// MaxDisplayNameLength is the longest webhook username Discord accepts.
	MaxDisplayNameLength = 80
	defaultFallbackName  = "chatbridge"
	ellipsis             = "…"
)

var defaultSlugs = map[string]string{
	"say":           "Say",
	"shout":         "Shout",
	"yell":          "Yell",
	"tell":          "Tell",
	"party":         "Party",
	"alliance":      "Alliance",
	"fc":            "FC",
	"novice":        "Novice",
	"echo":          "Echo",
	"emote":         "Emote",
	PartyFinderType: "PF",
}

func init() {
	for _, n := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		defaultSlugs["ls"+n] = "LS" + n
		defaultSlugs["cwls"+n] = "CWLS" + n
	}
}

// DefaultSlug returns the built-in slug for a chat type, or the type name
// with its first letter upper-cased when the type is unknown.
func DefaultSlug(chatType string) string {
	chatType = NormalizeType(chatType)
	if slug, ok := defaultSlugs[chatType]; ok {
		return slug
	}
	r, size := utf8.DecodeRuneInString(chatType)
	if r == utf8.RuneError {
		return "Chat"
	}
	return string(unicode.ToUpper(r)) + chatType[size:]
}

// NormalizeType lower-cases and trims a chat type name.
func NormalizeType(chatType string) string {
	return strings.ToLower(strings.TrimSpace(chatType))
}

// Options configures a Formatter. Map keys are chat type names.
type Options struct {
	Prefixes     map[string]string
	Slugs        map[string]string
	CFPrefix     string
	AvatarURL    string
	FallbackName string
	// MaxLength caps the content length in runes. 0 means no limit.
	MaxLength int
}

type Formatter struct {
	prefixes     map[string]string
	slugs        map[string]string
	cfPrefix     string
	avatarURL    string
	fallbackName string
	maxLength    int
}

func New(opts Options) *Formatter {
	f := &Formatter{
		prefixes:     normalizeKeys(opts.Prefixes),
		slugs:        normalizeKeys(opts.Slugs),
		cfPrefix:     opts.CFPrefix,
		avatarURL:    opts.AvatarURL,
		fallbackName: opts.FallbackName,
		maxLength:    opts.MaxLength,
	}
	if f.fallbackName == "" {
		f.fallbackName = defaultFallbackName
	}
	return f
}

func normalizeKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[NormalizeType(k)] = v
	}
	return out
}

// Slug returns the configured slug for chatType, falling back to the
// built-in one.
func (f *Formatter) Slug(chatType string) string {
	if slug, ok := f.slugs[NormalizeType(chatType)]; ok && slug != "" {
		return slug
	}
	return DefaultSlug(chatType)
}

// Prefix returns the text placed before the slug for chatType.
func (f *Formatter) Prefix(chatType string) string {
	chatType = NormalizeType(chatType)
	prefix := f.prefixes[chatType]
	if chatType == PartyFinderType && f.cfPrefix != "" {
		prefix = joinPrefix(f.cfPrefix, prefix)
	}
	return prefix
}

// DisplayName renders the author shown for an event: sender@world when the
// world is known.
func (f *Formatter) DisplayName(ev bus.ChatEvent) string {
	name := strings.TrimSpace(ev.Sender)
	if name == "" {
		return f.fallbackName
	}
	if world := strings.TrimSpace(ev.World); world != "" {
		name += "@" + world
	}
	return truncateRunes(name, MaxDisplayNameLength, "")
}

// Format renders ev as an outbound message. CorrelationID is left empty.
func (f *Formatter) Format(ev bus.ChatEvent) (bus.OutboundMessage, error) {
	text := strings.TrimSpace(ev.Message)
	if text == "" {
		return bus.OutboundMessage{}, ErrEmptyMessage
	}
	text = NeutralizeMentions(text)

	var sb strings.Builder
	if prefix := f.Prefix(ev.Type); prefix != "" {
		sb.WriteString(joinPrefix(prefix, ""))
	}
	sb.WriteString("**[")
	sb.WriteString(f.Slug(ev.Type))
	sb.WriteString("]** ")
	sb.WriteString(text)

	return bus.OutboundMessage{
		ChatType:    NormalizeType(ev.Type),
		DisplayName: f.DisplayName(ev),
		AvatarURL:   f.avatarURL,
		Content:     truncateRunes(sb.String(), f.maxLength, ellipsis),
	}, nil
}

// joinPrefix concatenates prefix parts, separating them by a single space.
func joinPrefix(a, b string) string {
	out := a
	if out != "" && !strings.HasSuffix(out, " ") {
		out += " "
	}
	return out + b
}

var mentionReplacer = strings.NewReplacer(
	"@everyone", "@\u200beveryone",
	"@here", "@\u200bhere",
)

// NeutralizeMentions breaks mass mentions with a zero-width space.
func NeutralizeMentions(s string) string {
	return mentionReplacer.Replace(s)
}

func truncateRunes(s string, limit int, tail string) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(tail)
	if keep < 0 {
		keep = 0
		tail = ""
	}
	runes := []rune(s)
	return string(runes[:keep]) + tail
}
