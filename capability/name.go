package capability

import (
	"strings"
	"unicode"
)

// NormalizeName joins a piece and an action into a camelCase capability
// name: ("slack", "send_channel_message") becomes "slackSendChannelMessage".
// Separators are underscores, dashes, dots and spaces.
func NormalizeName(piece, action string) string {
	var words []string
	for _, part := range []string{piece, action} {
		words = append(words, strings.FieldsFunc(part, func(r rune) bool {
			return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
		})...)
	}

	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(lowerFirst(w))
			continue
		}
		b.WriteString(upperFirst(w))
	}
	return b.String()
}

func upperFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
