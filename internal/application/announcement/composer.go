package announcement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/blox-verify/internal/domain"
)

// FieldLimit is the maximum length of an embed field value.
const FieldLimit = 1024

// DefaultColor is used when a draft names no colour or an unknown one.
const DefaultColor = "Default"

// palette maps the colour names staff can pick to RGB values.
var palette = map[string]int{
	"Blue":       0x3498db,
	"Green":      0x2ecc71,
	"Red":        0xe74c3c,
	"Purple":     0x9b59b6,
	"Orange":     0xe67e22,
	"Gold":       0xf1c40f,
	"Dark Blue":  0x206694,
	"Dark Green": 0x1f8b4c,
	"Dark Red":   0x992d22,
	"Teal":       0x1abc9c,
	"Default":    0x000000,
}

// Colors returns the palette names in a stable order, Default last.
func Colors() []string {
	names := make([]string, 0, len(palette))
	for name := range palette {
		if name != DefaultColor {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append(names, DefaultColor)
}

// LookupColor resolves a colour name case-insensitively.
func LookupColor(name string) (string, int, bool) {
	for n, v := range palette {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return n, v, true
		}
	}
	return "", 0, false
}

// ParseOptional treats "none" (any case) as an empty answer.
func ParseOptional(answer string) string {
	answer = strings.TrimSpace(answer)
	if strings.EqualFold(answer, "none") {
		return ""
	}
	return answer
}

// Draft is an announcement collected from a staff member.
type Draft struct {
	Title       string
	Description string
	Footer      string
	Color       string
}

// Compose renders the draft. A draft with neither title nor description is rejected.
func Compose(d Draft) (*domain.Embed, error) {
	if d.Title == "" && d.Description == "" {
		return nil, fmt.Errorf("announcement needs a title or a description: %w", domain.ErrBadRequest)
	}
	_, color, ok := LookupColor(d.Color)
	if !ok {
		color = palette[DefaultColor]
	}
	return &domain.Embed{
		Title:       d.Title,
		Description: d.Description,
		Footer:      d.Footer,
		Color:       color,
	}, nil
}

// AuditEntry describes one sent announcement for the administration log.
type AuditEntry struct {
	Draft       Draft
	SenderID    string
	SenderName  string
	ChannelName string
	SentAt      time.Time
}

// AuditEmbed builds the administration-log record of a sent announcement.
func AuditEmbed(a AuditEntry) *domain.Embed {
	color := a.Draft.Color
	if _, _, ok := LookupColor(color); !ok {
		color = DefaultColor
	}
	e := &domain.Embed{
		Title: "📢 Embed Sent",
		Description: fmt.Sprintf("Sent by: <@%s> (%s)\nSent to: #%s\nTime: %s UTC",
			a.SenderID, a.SenderID, a.ChannelName, a.SentAt.UTC().Format("2006-01-02 15:04:05")),
		Color:     palette["Orange"],
		Footer:    "Embed Logging System",
		Timestamp: a.SentAt,
	}
	e.AddField("Embed Title", Truncate(a.Draft.Title, FieldLimit), false).
		AddField("Embed Description", Truncate(a.Draft.Description, FieldLimit), false).
		AddField("Embed Footer", Truncate(a.Draft.Footer, FieldLimit), false).
		AddField("Embed Color", color, false)
	return e
}

// Truncate shortens s to at most limit runes, marking the cut with "...". Empty input
// becomes "None".
func Truncate(s string, limit int) string {
	if s == "" {
		return "None"
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
