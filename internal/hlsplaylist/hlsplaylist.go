// Package hlsplaylist implements the low-level HLS playlist tokenizer
// (C3, §4.3.1): line-by-line scanning, tag/value splitting, attribute-list
// parsing, and the #EXTM3U header check every higher-level parse relies on.
// It does not check playlist hierarchy (segment tags such as EXTINF or
// EXT-X-KEY in a playlist that also carries EXT-X-STREAM-INF are not
// rejected here). Line-by-line scanning and
// tag/attribute split mirror a plain bufio.Scanner reader loop; attribute
// parsing generalizes a single comma-split regex into a quote-aware
// scanner so that quoted-string attribute values (URI, CODECS) can
// themselves contain commas.
package hlsplaylist

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"manifestd/internal/manifesterrors"
)

// HeaderTag is the mandatory first line of any HLS playlist.
const HeaderTag = "#EXTM3U"

// Tag is one parsed playlist line that begins with '#'.
type Tag struct {
	Name       string // e.g. "#EXT-X-STREAM-INF"
	Value      string // everything after the first ':', or "" for valueless tags
	HasValue   bool   // distinguishes "no value" from "empty value"
	Attributes map[string]string
	Line       int
}

// LineKind classifies one scanned, non-empty playlist line: either a Tag or
// a plain URI line (ScannedLine.Tag == nil).
type LineKind int

const (
	LineTag LineKind = iota
	LineURI
)

// ScannedLine pairs a raw line with its classification.
type ScannedLine struct {
	Kind   LineKind
	Tag    *Tag
	URI    string
	Number int
}

// attributeTags lists the tags whose value is an attribute-list (KEY=VALUE
// pairs) rather than a bare scalar.
var attributeTags = map[string]bool{
	"#EXT-X-STREAM-INF":        true,
	"#EXT-X-I-FRAME-STREAM-INF": true,
	"#EXT-X-MEDIA":             true,
	"#EXT-X-KEY":               true,
	"#EXT-X-MAP":               true,
	"#EXT-X-BYTERANGE":         false, // scalar, handled separately
	"#EXT-X-SESSION-DATA":      true,
	"#EXT-X-SESSION-KEY":       true,
	"#EXT-X-DEFINE":            true,
	"#EXT-X-START":             true,
	"#EXT-X-DATERANGE":         true,
	"#EXT-X-SKIP":              true,
	"#EXT-X-PART":              true,
	"#EXT-X-PART-INF":          true,
	"#EXT-X-PRELOAD-HINT":      true,
	"#EXT-X-RENDITION-REPORT":  true,
	"#EXT-X-SERVER-CONTROL":    true,
	"#EXT-X-TILES":             true,
}

// Scan tokenizes r into ScannedLines, validating the #EXTM3U header and
// skipping blank lines. It does not interpret tag semantics beyond
// recognizing which tags carry attribute lists.
func Scan(r io.Reader) ([]ScannedLine, error) {
	scanner := bufio.NewScanner(r)
	// Playlists can carry long attribute lines (e.g. many CODECS/VIDEO-RANGE
	// combinations); grow the buffer past bufio's 64KiB default.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var out []ScannedLine
	lineNum := 0
	sawHeader := false

	for scanner.Scan() {
		lineNum++
		raw := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		if !sawHeader {
			if trimmed != HeaderTag {
				return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
					manifesterrors.CodeHLSPlaylistHeaderMissing, nil, trimmed)
			}
			sawHeader = true
			continue
		}

		if strings.HasPrefix(trimmed, "#EXT") {
			tag, err := parseTag(trimmed, lineNum)
			if err != nil {
				return nil, err
			}
			out = append(out, ScannedLine{Kind: LineTag, Tag: tag, Number: lineNum})
		} else if strings.HasPrefix(trimmed, "#") {
			continue // comment, not a recognized tag
		} else {
			out = append(out, ScannedLine{Kind: LineURI, URI: trimmed, Number: lineNum})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hlsplaylist: scan: %w", err)
	}
	if !sawHeader {
		return nil, manifesterrors.New(manifesterrors.Critical, manifesterrors.CategoryManifest,
			manifesterrors.CodeHLSPlaylistHeaderMissing, nil)
	}
	return out, nil
}

func parseTag(line string, lineNum int) (*Tag, error) {
	tag := &Tag{Line: lineNum}

	colon := strings.Index(line, ":")
	if colon == -1 {
		tag.Name = line
		return tag, nil
	}
	tag.Name = line[:colon]
	tag.Value = line[colon+1:]
	tag.HasValue = true

	if attributeTags[tag.Name] {
		attrs, err := ParseAttributeList(tag.Value)
		if err != nil {
			return nil, fmt.Errorf("hlsplaylist: line %d: %w", lineNum, err)
		}
		tag.Attributes = attrs
	}
	return tag, nil
}

// ParseAttributeList parses an HLS attribute-list (RFC 8216 §4.2): a
// comma-separated sequence of AttributeName=AttributeValue pairs, where a
// quoted-string value may itself contain commas. A plain comma-split regex
// cannot handle that case, so this is a small hand-rolled scanner instead.
func ParseAttributeList(s string) (map[string]string, error) {
	attrs := make(map[string]string)
	i := 0
	n := len(s)

	for i < n {
		for i < n && s[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}

		eq := strings.IndexByte(s[i:], '=')
		if eq == -1 {
			return nil, fmt.Errorf("hlsplaylist: malformed attribute near %q", s[i:])
		}
		name := s[i : i+eq]
		i += eq + 1

		var value string
		if i < n && s[i] == '"' {
			end := strings.IndexByte(s[i+1:], '"')
			if end == -1 {
				return nil, fmt.Errorf("hlsplaylist: unterminated quoted-string attribute %s", name)
			}
			value = s[i+1 : i+1+end]
			i = i + 1 + end + 1
			// Skip to the next comma.
			if comma := strings.IndexByte(s[i:], ','); comma != -1 {
				i += comma + 1
			} else {
				i = n
			}
		} else {
			comma := strings.IndexByte(s[i:], ',')
			if comma == -1 {
				value = s[i:]
				i = n
			} else {
				value = s[i : i+comma]
				i += comma + 1
			}
		}

		attrs[name] = value
	}

	return attrs, nil
}

// AttrString returns the string value of name, or "" if absent.
func AttrString(attrs map[string]string, name string) string { return attrs[name] }

// AttrInt parses name as a decimal integer.
func AttrInt(attrs map[string]string, name string) (int, bool) {
	v, ok := attrs[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AttrFloat parses name as a float64.
func AttrFloat(attrs map[string]string, name string) (float64, bool) {
	v, ok := attrs[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AttrBool interprets an enumerated-string attribute as YES/NO.
func AttrBool(attrs map[string]string, name string) bool {
	return attrs[name] == "YES"
}

// ParseByteRange parses an EXT-X-BYTERANGE / BYTERANGE attribute value of
// the form "<length>[@<offset>]".
func ParseByteRange(s string) (length int64, offset int64, hasOffset bool, err error) {
	parts := strings.SplitN(s, "@", 2)
	length, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("hlsplaylist: invalid BYTERANGE %q: %w", s, err)
	}
	if len(parts) == 2 {
		offset, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("hlsplaylist: invalid BYTERANGE offset %q: %w", s, err)
		}
		hasOffset = true
	}
	return length, offset, hasOffset, nil
}

// variableRef matches a {$NAME} variable reference (§4.8.2).
var variableRef = regexp.MustCompile(`\{\$([A-Za-z0-9_-]+)\}`)

// SubstituteVariables applies #EXT-X-DEFINE variable substitution (§4.8.2)
// to lines in document order and returns the substituted copy alongside the
// final NAME->VALUE table, so a master playlist's own Variables can be
// handed to a media playlist's parse as its imported set. A NAME/VALUE
// definition records a literal; an IMPORT definition looks NAME up in
// imported (nil when there is no parent playlist, i.e. while processing a
// master playlist itself). Once defined, a variable substitutes into every
// later tag value, attribute value, and URI line via {$NAME}; references to
// an undefined name are left verbatim.
func SubstituteVariables(lines []ScannedLine, imported map[string]string) ([]ScannedLine, map[string]string) {
	vars := make(map[string]string)
	out := make([]ScannedLine, len(lines))

	for i, l := range lines {
		if l.Kind == LineURI {
			out[i] = ScannedLine{Kind: LineURI, URI: substituteVars(l.URI, vars), Number: l.Number}
			continue
		}

		tag := *l.Tag
		if tag.Name == "#EXT-X-DEFINE" {
			if name, ok := tag.Attributes["IMPORT"]; ok {
				if v, found := imported[name]; found {
					vars[name] = v
				}
			} else if name := tag.Attributes["NAME"]; name != "" {
				vars[name] = tag.Attributes["VALUE"]
			}
			out[i] = ScannedLine{Kind: LineTag, Tag: &tag, Number: l.Number}
			continue
		}

		if tag.HasValue {
			tag.Value = substituteVars(tag.Value, vars)
		}
		if tag.Attributes != nil {
			attrs := make(map[string]string, len(tag.Attributes))
			for k, v := range tag.Attributes {
				attrs[k] = substituteVars(v, vars)
			}
			tag.Attributes = attrs
		}
		out[i] = ScannedLine{Kind: LineTag, Tag: &tag, Number: l.Number}
	}

	return out, vars
}

func substituteVars(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{$") {
		return s
	}
	return variableRef.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// ParseInfValue splits an EXTINF tag's value into duration and optional
// title.
func ParseInfValue(s string) (duration float64, title string, err error) {
	parts := strings.SplitN(s, ",", 2)
	duration, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, "", fmt.Errorf("hlsplaylist: invalid EXTINF duration %q: %w", parts[0], err)
	}
	if len(parts) == 2 {
		title = parts[1]
	}
	return duration, title, nil
}
