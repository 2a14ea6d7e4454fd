package syndication

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type opmlBody struct {
	Outlines []outline `xml:"outline"`
}

// outline is a folder when XMLURL is empty, otherwise a feed.
type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []outline `xml:"outline,omitempty"`
}

// ReadOPML flattens an OPML subscription list into feeds. Folder names are
// joined into the feed name, e.g. "Tech/Go/The Go Blog".
func ReadOPML(r io.Reader) ([]Feed, error) {
	var doc opmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var feeds []Feed
	var walk func(outlines []outline, path []string)
	walk = func(outlines []outline, path []string) {
		for _, o := range outlines {
			name := o.Title
			if name == "" {
				name = o.Text
			}
			switch {
			case o.XMLURL != "":
				feeds = append(feeds, Feed{
					Name: strings.Join(append(append([]string{}, path...), name), "/"),
					URL:  o.XMLURL,
				})
			case len(o.Outlines) > 0:
				walk(o.Outlines, append(path, name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return feeds, nil
}

// WriteOPML writes feeds as a flat OPML 2.0 document.
func WriteOPML(w io.Writer, title string, feeds []Feed) error {
	doc := opmlDoc{
		Version: "2.0",
		Head: opmlHead{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}
	for _, f := range feeds {
		name := f.Name
		if name == "" {
			name = f.URL
		}
		doc.Body.Outlines = append(doc.Body.Outlines, outline{Text: name, Title: name, Type: "rss", XMLURL: f.URL})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
