package websub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Placeholders substituted for absent fields so a partial payload still
// produces a usable event.
const (
	UnknownField = "Unknown"
	NoTitle      = "No title"
)

// ErrNoEntry is returned when the feed parses but contains no video entry,
// e.g. a deletion notice.
var ErrNoEntry = errors.New("no entry found in notification feed")

// VideoEvent is the normalized record extracted from one hub notification.
type VideoEvent struct {
	VideoID   string
	Title     string
	URL       string
	Channel   string
	Published string
}

// atomFeed mirrors the subset of the YouTube push Atom payload this service
// consumes. Entries beyond the first are ignored.
type atomFeed struct {
	XMLName xml.Name   `xml:"http://www.w3.org/2005/Atom feed"`
	Entry   *atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string     `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Author    atomAuthor `xml:"author"`
	Published string     `xml:"published"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// ParseNotification parses a notification body into a VideoEvent. Only XML
// syntax failures and a missing entry element yield a nil event; each missing
// sub-field independently degrades to its placeholder instead. The function is
// pure, so parsing the same body twice yields identical events.
func ParseNotification(body []byte) (*VideoEvent, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse notification XML: %w", err)
	}
	if feed.Entry == nil {
		return nil, ErrNoEntry
	}

	entry := feed.Entry
	ev := &VideoEvent{
		VideoID:   textOr(entry.VideoID, UnknownField),
		Title:     textOr(entry.Title, NoTitle),
		Channel:   textOr(entry.Author.Name, UnknownField),
		Published: textOr(entry.Published, UnknownField),
	}

	ev.URL = alternateLink(entry.Links)
	if ev.URL == "" {
		ev.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%s", ev.VideoID)
	}

	return ev, nil
}

func textOr(s, placeholder string) string {
	if s = strings.TrimSpace(s); s == "" {
		return placeholder
	}
	return s
}

func alternateLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" && l.Href != "" {
			return l.Href
		}
	}
	return ""
}
