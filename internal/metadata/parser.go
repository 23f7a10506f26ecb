package metadata

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// Field is a single "Key: Value" header.
type Field struct {
	Key   string
	Value string
}

// Headers holds the header block of a WHEEL or METADATA file in file order.
type Headers struct {
	Fields []Field
}

// Get returns the first value for key (case-insensitive), or "".
func (h *Headers) Get(key string) string {
	for _, f := range h.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for key (case-insensitive) in file order.
func (h *Headers) Values(key string) []string {
	var values []string
	for _, f := range h.Fields {
		if strings.EqualFold(f.Key, key) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Parser reads RFC 822 style header blocks as found in .dist-info files.
type Parser struct{}

// NewParser creates a new header parser.
func NewParser() *Parser {
	return &Parser{}
}

var fieldRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_-]*):\s?(.*)$`)

// Parse reads headers up to the first blank line; the message body is ignored.
func (p *Parser) Parse(r io.Reader) (*Headers, error) {
	h := &Headers{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Blank line ends the header block
		if line == "" {
			break
		}

		// Continuation line
		if line[0] == ' ' || line[0] == '\t' {
			if n := len(h.Fields); n > 0 {
				h.Fields[n-1].Value += "\n" + strings.TrimSpace(line)
			}
			continue
		}

		if matches := fieldRe.FindStringSubmatch(line); matches != nil {
			h.Fields = append(h.Fields, Field{
				Key:   matches[1],
				Value: strings.TrimSpace(matches[2]),
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading headers: %w", err)
	}

	return h, nil
}

// ParseFile parses the header block of path inside fs.
func (p *Parser) ParseFile(fs billy.Basic, path string) (*Headers, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return p.Parse(f)
}
