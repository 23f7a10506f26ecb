// Package index reads and writes the static link page that lists published wheels.
package index

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// DefaultBaseURL is the prefix each link target is formed from.
const DefaultBaseURL = "https://pycg.s3.ap-northeast-1.amazonaws.com/packages/"

var linkRe = regexp.MustCompile(`href=".*?">(.*?)</a>`)

// Parser reads the file names listed on an index page.
type Parser struct {
	r io.Reader
}

// NewParser creates a new index page parser.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r}
}

// Parse returns the link texts of every anchor on the page, in page order.
// Anchors spanning lines are not recognized.
func (p *Parser) Parse() ([]string, error) {
	var names []string

	scanner := bufio.NewScanner(p.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		for _, m := range linkRe.FindAllStringSubmatch(scanner.Text(), -1) {
			names = append(names, m[1])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading index page: %w", err)
	}
	return names, nil
}

// Emitter writes index pages.
type Emitter struct {
	w       io.Writer
	baseURL string
}

// NewEmitter creates an emitter whose links point below baseURL.
func NewEmitter(w io.Writer, baseURL string) *Emitter {
	return &Emitter{w: w, baseURL: baseURL}
}

// Emit writes one link line per unique file name, sorted.
func (e *Emitter) Emit(names []string) error {
	for _, name := range Union(names) {
		if _, err := fmt.Fprintf(e.w, "<a href=\"%s\">%s</a><br>\n", LinkURL(e.baseURL, name), name); err != nil {
			return err
		}
	}
	return nil
}

// LinkURL returns the download URL of name below baseURL. An empty baseURL
// selects DefaultBaseURL.
func LinkURL(baseURL, name string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + Href(name)
}

// Href escapes a file name for use in a link target. Only '+' is escaped,
// as %2B.
func Href(name string) string {
	return strings.ReplaceAll(name, "+", "%2B")
}

// Union merges name lists into one sorted list without duplicates.
func Union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, list := range lists {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
