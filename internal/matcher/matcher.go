// Package matcher extracts answer references from chat message text.
package matcher

import (
	"regexp"
	"strconv"
	"strings"
)

// answerRegex finds "answer N body" or "/a N body" anywhere in the text.
var answerRegex = regexp.MustCompile(`(?is)(answer|/a/?)\s*(\d+)\s+(?:-\s+)?(.+)$`)

// shapeRegex recognizes a message that is trying to be an answer.
var shapeRegex = regexp.MustCompile(`(?i)^\s*(?:answer|/a)(?:/|\s|\d|$)`)

// Reference is a resolved answer reference.
type Reference struct {
	Sequence int64
	Body     string
	// HTML is the body re-extracted from the markup variant, if one was given
	// and it matched too.
	HTML string
}

// Match reports whether text references a question by sequence number. The
// second result is false when the pattern does not apply; that is the
// "not an answer" signal, never an error.
func Match(text, html string) (Reference, bool) {
	seq, body, ok := extract(text)
	if !ok {
		return Reference{}, false
	}
	m := Reference{Sequence: seq, Body: body}
	if html != "" {
		if _, htmlBody, ok := extract(html); ok {
			m.HTML = htmlBody
		}
	}
	return m, true
}

func extract(s string) (int64, string, bool) {
	groups := answerRegex.FindStringSubmatch(s)
	if groups == nil {
		return 0, "", false
	}
	seq, err := strconv.ParseInt(groups[2], 10, 64)
	if err != nil {
		return 0, "", false
	}
	body := strings.TrimSpace(groups[3])
	if body == "" {
		return 0, "", false
	}
	return seq, body, true
}

// AnswerShaped reports whether the message opens with an answer token.
func AnswerShaped(text string) bool {
	return shapeRegex.MatchString(text)
}

// StripMention removes the first case-insensitive occurrence of the bot's
// name, which group rooms prefix to every mention.
func StripMention(text, botName string) string {
	if botName == "" {
		return strings.TrimSpace(text)
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(botName))
	loc := re.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}

// Command splits text into a lower-cased first word and the remainder.
func Command(text string) (name, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	fields := strings.SplitN(text, " ", 2)
	name = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return name, rest
}
