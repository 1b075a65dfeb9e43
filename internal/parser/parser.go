// Package parser splits knowledge category files into session blocks and
// extracts frontmatter, wikilinks, and tags from them.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headerRe   = regexp.MustCompile(`(?m)^## Session: (\S+) \(([^)]+)\)(?: \[ttl:([^\]]+)\])?`)
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

	// SessionIDRe and TTLRe match the values FormatHeader can write so that
	// Parse reads them back unchanged.
	SessionIDRe = regexp.MustCompile(`^[^\s()\[\]]+$`)
	TTLRe       = regexp.MustCompile(`^[^\s\[\]]+$`)
)

// PreviewLen is the maximum number of runes kept in a block preview.
const PreviewLen = 80

// Block is one "## Session:" section of a category file.
type Block struct {
	SessionID string
	Timestamp string
	TTL       string
	// Header is the raw header text; Header+Content reproduces the section.
	Header  string
	Content string
	Preview string
	Links   []string
	Tags    []string
}

// Document holds the output of parsing a category file.
type Document struct {
	// Preamble is everything before the first block header, frontmatter included.
	Preamble    string
	Frontmatter map[string]interface{}
	Title       string
	Blocks      []Block
}

// Parse splits raw category file bytes into a preamble and ordered blocks.
func Parse(data []byte) (*Document, error) {
	text := string(data)
	doc := &Document{}

	locs := headerRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		doc.Preamble = text
	} else {
		doc.Preamble = text[:locs[0][0]]
	}

	fm, rest := splitFrontmatter([]byte(doc.Preamble))
	doc.Frontmatter = fm
	doc.Title = deriveTitle(fm, rest)

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		b := Block{
			SessionID: text[loc[2]:loc[3]],
			Timestamp: text[loc[4]:loc[5]],
			Header:    text[loc[0]:loc[1]],
			Content:   text[loc[1]:end],
		}
		if loc[6] >= 0 {
			b.TTL = text[loc[6]:loc[7]]
		}
		b.Preview = Preview(b.Content)
		b.Links = extractLinks(b.Content)
		b.Tags = extractTags(b.Content)
		doc.Blocks = append(doc.Blocks, b)
	}

	return doc, nil
}

// HasHeader reports whether any line of text would parse as a block header.
func HasHeader(text string) bool {
	return headerRe.MatchString(text)
}

// FormatHeader builds a canonical block header line (without newline).
func FormatHeader(sessionID, timestamp, ttl string) string {
	h := "## Session: " + sessionID + " (" + timestamp + ")"
	if ttl != "" {
		h += " [ttl:" + ttl + "]"
	}
	return h
}

// Render reassembles a category file from a preamble and blocks. Blocks
// whose Header is empty get a canonical one. It is the inverse of Parse for
// unmodified documents.
func Render(preamble string, blocks []Block) []byte {
	var buf bytes.Buffer
	buf.WriteString(preamble)
	for _, b := range blocks {
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		content := b.Content
		header := b.Header
		if header == "" {
			header = FormatHeader(b.SessionID, b.Timestamp, b.TTL)
			if !strings.HasPrefix(content, "\n") {
				content = "\n" + content
			}
		}
		buf.WriteString(header)
		buf.WriteString(content)
	}
	return buf.Bytes()
}

// DefaultPreamble returns the heading used when a category file is created.
func DefaultPreamble(category string) string {
	if category == "" {
		return ""
	}
	return "# " + strings.ToUpper(category[:1]) + category[1:] + "\n\n"
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the rest of the preamble. If no frontmatter is found the entire input is returned.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the preamble as plain text.
		return nil, string(data)
	}

	return fm, body
}

// Preview returns the first non-blank line of content, cut to PreviewLen runes.
func Preview(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := []rune(line)
		if len(r) > PreviewLen {
			r = r[:PreviewLen]
		}
		return string(r)
	}
	return ""
}

// extractLinks returns deduplicated wikilink targets, normalising aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		// [[target|alias]] → target.
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects inline #tags from a block body.
func extractTags(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
