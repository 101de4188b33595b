package feed

import (
	"encoding/xml"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"episode-finder/internal/models"
)

const generator = "episode-finder"

// Metadata describes the channel of a rendered feed.
type Metadata struct {
	Title       string
	Description string
	Link        string
	// SelfURL is advertised as the feed's atom:link when set.
	SelfURL  string
	Language string
	Author   string
}

// Render builds an RSS 2.0 document with one item per episode, in the order
// given. The channel's lastBuildDate is the newest creation time, or now for
// an empty feed.
func Render(episodes []models.Episode, meta Metadata) ([]byte, error) {
	var lastBuild int64
	for _, ep := range episodes {
		lastBuild = max(lastBuild, ep.CreateTime)
	}
	built := time.Now().UTC()
	if lastBuild > 0 {
		built = time.Unix(lastBuild, 0).UTC()
	}

	rss := rssFeed{
		Version:  "2.0",
		AtomNS:   "http://www.w3.org/2005/Atom",
		ITunesNS: "http://www.itunes.com/dtds/podcast-1.0.dtd",
		Channel: rssChannel{
			Title:         meta.Title,
			Link:          meta.Link,
			Description:   meta.Description,
			Language:      meta.Language,
			LastBuildDate: built.Format(time.RFC1123Z),
			Generator:     generator,
			ITunesAuthor:  meta.Author,
			Items:         make([]rssItem, 0, len(episodes)),
		},
	}
	if meta.SelfURL != "" {
		rss.Channel.AtomLink = &rssAtomLink{Href: meta.SelfURL, Rel: "self", Type: "application/rss+xml"}
	}

	for _, ep := range episodes {
		item := rssItem{
			Title:       ep.Title,
			Link:        ep.AudioLink,
			GUID:        rssGUID{IsPermaLink: "false", Value: ep.Number.String()},
			Description: ep.Description,
			Enclosure: rssEnclosure{
				URL:    ep.AudioLink,
				Length: int64(ep.LengthInSeconds),
				Type:   mimeTypeForLink(ep.AudioLink),
			},
			ITunesDuration: formatDuration(ep.LengthInSeconds),
			ITunesAuthor:   meta.Author,
		}
		if ep.CreateTime > 0 {
			item.PubDate = ep.PublishedAt().Format(time.RFC1123Z)
		}
		for _, tag := range ep.Tags {
			item.Categories = append(item.Categories, string(tag))
		}
		rss.Channel.Items = append(rss.Channel.Items, item)
	}

	output, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal feed")
	}
	return append([]byte(xml.Header), output...), nil
}

func mimeTypeForLink(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}

	ext := strings.ToLower(path.Ext(p))
	if value, ok := audioMIMETypes[ext]; ok {
		return value
	}
	if ext != "" {
		if value := mime.TypeByExtension(ext); value != "" {
			return value
		}
	}
	return "audio/mpeg"
}

var audioMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

type rssFeed struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string       `xml:"title"`
	Link          string       `xml:"link,omitempty"`
	Description   string       `xml:"description"`
	Language      string       `xml:"language,omitempty"`
	LastBuildDate string       `xml:"lastBuildDate"`
	Generator     string       `xml:"generator"`
	AtomLink      *rssAtomLink `xml:"atom:link,omitempty"`
	ITunesAuthor  string       `xml:"itunes:author,omitempty"`
	Items         []rssItem    `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link,omitempty"`
	GUID           rssGUID      `xml:"guid"`
	PubDate        string       `xml:"pubDate,omitempty"`
	Description    string       `xml:"description"`
	Categories     []string     `xml:"category"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
	ITunesAuthor   string       `xml:"itunes:author,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
