// Package artifact seals certificate metadata into a rendered PDF and opens
// sealed PDFs again.
//
// Sealing appends one PDF incremental-update section to the rendered bytes:
//
//	%certserver-metadata 1.0
//	N 0 obj << /Title <FEFF...> >> endobj
//	xref, trailer (/Size /Root /Info /Prev [/ID]), startxref, %%EOF
//
// The rendered bytes are left untouched, so the content digest is taken over
// exactly the bytes before the marker line. Opening re-derives the section
// from the content and the decoded title and compares it byte for byte with
// the tail of the file; anything appended or edited after sealing makes the
// document not intact.
package artifact

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	certerrors "github.com/adamscao/certserver/internal/errors"
)

// MarkerLine opens the sealed metadata section.
const MarkerLine = "\n%certserver-metadata 1.0\n"

var (
	pdfHeader   = []byte("%PDF-")
	startxrefKw = []byte("startxref")

	rootRe    = regexp.MustCompile(`/Root\s+(\d+)\s+(\d+)\s+R`)
	sizeRe    = regexp.MustCompile(`/Size\s+(\d+)`)
	idRe      = regexp.MustCompile(`/ID\s*\[[^\]]*\]`)
	encryptRe = regexp.MustCompile(`/Encrypt\b`)
	titleRe   = regexp.MustCompile(`/Title\s*<([0-9A-Fa-f\s]*)>`)
)

// Document is an opened sealed PDF.
type Document struct {
	Title   string
	content []byte
	intact  bool
}

// ContentBytes returns the rendered bytes the content digest covers. It fails
// with ErrContentMismatch when the file was changed after sealing.
func (d *Document) ContentBytes() ([]byte, error) {
	if !d.intact {
		return nil, fmt.Errorf("%w: artifact was modified after sealing", certerrors.ErrContentMismatch)
	}
	return d.content, nil
}

// Intact reports whether the sealed section is still the last thing in the file.
func (d *Document) Intact() bool {
	return d.intact
}

// trailerInfo holds what an update section needs from the previous revision.
type trailerInfo struct {
	prevXref int
	size     int
	root     string
	id       string
}

// Seal appends title to rendered as a new document Info dictionary.
func Seal(rendered []byte, title string) ([]byte, error) {
	if bytes.Contains(rendered, []byte(MarkerLine)) {
		return nil, fmt.Errorf("%w: document already carries certificate metadata", certerrors.ErrArtifactFormat)
	}

	info, err := readTrailer(rendered)
	if err != nil {
		return nil, err
	}

	section := buildSection(len(rendered), info, title)
	sealed := make([]byte, 0, len(rendered)+len(section))
	sealed = append(sealed, rendered...)
	return append(sealed, section...), nil
}

// Open locates the sealed section of b and decodes its title.
func Open(b []byte) (*Document, error) {
	if !bytes.HasPrefix(b, pdfHeader) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", certerrors.ErrArtifactFormat)
	}

	idx := bytes.LastIndex(b, []byte(MarkerLine))
	if idx < 0 {
		return nil, fmt.Errorf("%w: no certificate metadata found", certerrors.ErrParse)
	}
	content, tail := b[:idx], b[idx:]

	m := titleRe.FindSubmatch(tail)
	if m == nil {
		return nil, fmt.Errorf("%w: certificate metadata title not found", certerrors.ErrParse)
	}
	title, err := decodeHexTextString(string(m[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", certerrors.ErrParse, err)
	}

	doc := &Document{Title: title, content: content}
	if info, err := readTrailer(content); err == nil {
		doc.intact = bytes.Equal(tail, buildSection(len(content), info, title))
	}
	return doc, nil
}

// Title returns the sealed metadata title of b.
func Title(b []byte) (string, error) {
	doc, err := Open(b)
	if err != nil {
		return "", err
	}
	return doc.Title, nil
}

// readTrailer finds the last cross-reference section of b and the /Root,
// /Size and /ID entries of its trailer (or xref stream) dictionary.
func readTrailer(b []byte) (trailerInfo, error) {
	if !bytes.HasPrefix(b, pdfHeader) {
		return trailerInfo{}, fmt.Errorf("%w: missing %%PDF- header", certerrors.ErrArtifactFormat)
	}

	kw := bytes.LastIndex(b, startxrefKw)
	if kw < 0 {
		return trailerInfo{}, fmt.Errorf("%w: startxref not found", certerrors.ErrArtifactFormat)
	}
	fields := strings.Fields(string(b[kw+len(startxrefKw):]))
	if len(fields) == 0 {
		return trailerInfo{}, fmt.Errorf("%w: startxref offset missing", certerrors.ErrArtifactFormat)
	}
	prev, err := strconv.Atoi(fields[0])
	if err != nil || prev <= 0 || prev >= kw {
		return trailerInfo{}, fmt.Errorf("%w: invalid startxref offset %q", certerrors.ErrArtifactFormat, fields[0])
	}

	// The trailer dictionary follows a classic xref table; an xref stream
	// carries the same keys in its own dictionary.
	dict := b[prev:kw]
	if encryptRe.Match(dict) {
		return trailerInfo{}, fmt.Errorf("%w: encrypted documents are not supported", certerrors.ErrArtifactFormat)
	}

	root := rootRe.FindSubmatch(dict)
	if root == nil {
		return trailerInfo{}, fmt.Errorf("%w: trailer has no /Root", certerrors.ErrArtifactFormat)
	}
	size := sizeRe.FindSubmatch(dict)
	if size == nil {
		return trailerInfo{}, fmt.Errorf("%w: trailer has no /Size", certerrors.ErrArtifactFormat)
	}
	n, err := strconv.Atoi(string(size[1]))
	if err != nil || n <= 0 {
		return trailerInfo{}, fmt.Errorf("%w: invalid /Size %q", certerrors.ErrArtifactFormat, size[1])
	}

	return trailerInfo{
		prevXref: prev,
		size:     n,
		root:     fmt.Sprintf("%s %s R", root[1], root[2]),
		id:       string(idRe.Find(dict)),
	}, nil
}

// buildSection renders the update section for content of length offset.
func buildSection(offset int, info trailerInfo, title string) []byte {
	var b bytes.Buffer
	b.WriteString(MarkerLine)

	objNum := info.size
	objOffset := offset + b.Len()
	fmt.Fprintf(&b, "%d 0 obj\n<< /Title <%s> >>\nendobj\n", objNum, encodeHexTextString(title))

	xrefOffset := offset + b.Len()
	b.WriteString("xref\n0 1\n0000000000 65535 f\r\n")
	fmt.Fprintf(&b, "%d 1\n%010d 00000 n\r\n", objNum, objOffset)

	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root %s /Info %d 0 R /Prev %d", objNum+1, info.root, objNum, info.prevXref)
	if info.id != "" {
		b.WriteString(" " + info.id)
	}
	b.WriteString(" >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return b.Bytes()
}

// encodeHexTextString encodes s as a UTF-16BE PDF text string with BOM.
func encodeHexTextString(s string) string {
	units := utf16.Encode([]rune(s))
	raw := make([]byte, 2, 2+2*len(units))
	raw[0], raw[1] = 0xFE, 0xFF
	for _, u := range units {
		raw = append(raw, byte(u>>8), byte(u))
	}
	return strings.ToUpper(hex.EncodeToString(raw))
}

// decodeHexTextString decodes a PDF hex string body as a text string:
// UTF-16BE with BOM, otherwise one byte per character.
func decodeHexTextString(body string) (string, error) {
	body = strings.Join(strings.Fields(body), "")
	if len(body)%2 == 1 {
		body += "0"
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("invalid hex title: %v", err)
	}

	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		raw = raw[2:]
		if len(raw)%2 != 0 {
			return "", fmt.Errorf("invalid UTF-16 title length %d", len(raw))
		}
		units := make([]uint16, len(raw)/2)
		for i := range units {
			units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
		}
		return string(utf16.Decode(units)), nil
	}

	runes := make([]rune, len(raw))
	for i, c := range raw {
		runes[i] = rune(c)
	}
	return string(runes), nil
}
