// Package opml reads and writes OPML subscription lists.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"

	"speedreader/internal/model"
)

type document struct {
	XMLName xml.Name  `xml:"opml"`
	Version string    `xml:"version,attr"`
	Title   string    `xml:"head>title,omitempty"`
	Body    []outline `xml:"body>outline"`
}

type outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Children []outline `xml:"outline"`
}

// Parse extracts feed subscriptions from an OPML document. Nested
// folder outlines are flattened; outlines without an xmlUrl are
// treated as folders and skipped themselves.
func Parse(r io.Reader) ([]model.Feed, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse opml: %w", err)
	}

	var feeds []model.Feed
	var walk func([]outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				feeds = append(feeds, model.Feed{
					URL:     o.XMLURL,
					Title:   title,
					SiteURL: o.HTMLURL,
				})
			}
			walk(o.Children)
		}
	}
	walk(doc.Body)
	return feeds, nil
}

// Write emits the feeds as a flat OPML 2.0 document.
func Write(w io.Writer, feeds []model.Feed) error {
	doc := document{
		Version: "2.0",
		Title:   "speedreader subscriptions",
	}
	for _, f := range feeds {
		doc.Body = append(doc.Body, outline{
			Text:    f.Title,
			Title:   f.Title,
			Type:    "rss",
			XMLURL:  f.URL,
			HTMLURL: f.SiteURL,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write opml: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write opml: %w", err)
	}
	return enc.Close()
}
