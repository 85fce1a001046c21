package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"da-go/internal/checksum"
)

const (
	// Namespace is the default namespace of manifest documents.
	Namespace = "http://dataaccessioner.org/schema/dda-1-1"
	// PremisNamespace is bound to the "premis" prefix.
	PremisNamespace = "info:lc/xmlns/premis-v2"

	// DefaultOriginator is written when the manifest does not name one.
	DefaultOriginator = "da"

	identifierTypeUUID = "uuid"
)

// ParseError describes a manifest document that cannot be loaded.
type ParseError struct {
	Element string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("parsing manifest: %v", e.Err)
	}
	return fmt.Sprintf("parsing manifest: %s: %v", e.Element, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Encoding side. Prefixed names are written literally so the premis prefix
// is declared once on the root instead of on every element.

type collectionOut struct {
	XMLName     xml.Name     `xml:"collection"`
	Xmlns       string       `xml:"xmlns,attr"`
	XmlnsPremis string       `xml:"xmlns:premis,attr"`
	Accession   accessionOut `xml:"accession"`
}

type accessionOut struct {
	Number     string    `xml:"number,attr"`
	Created    string    `xml:"created,attr,omitempty"`
	IngestNote string    `xml:"ingest_note"`
	Files      []fileOut `xml:"file"`
}

type fileOut struct {
	Name         string    `xml:"name,attr"`
	Size         int64     `xml:"size,attr"`
	LastModified string    `xml:"last_modified,attr,omitempty"`
	Checksum     string    `xml:"checksum,attr"`
	Object       objectOut `xml:"premis:object"`
}

type objectOut struct {
	Identifier      identifierOut      `xml:"premis:objectIdentifier"`
	Characteristics characteristicsOut `xml:"premis:objectCharacteristics"`
	OriginalName    string             `xml:"premis:originalName"`
}

type identifierOut struct {
	Type  string `xml:"premis:objectIdentifierType"`
	Value string `xml:"premis:objectIdentifierValue"`
}

type characteristicsOut struct {
	Fixity fixityOut `xml:"premis:fixity"`
	Size   int64     `xml:"premis:size"`
}

type fixityOut struct {
	Algorithm  string `xml:"premis:messageDigestAlgorithm"`
	Digest     string `xml:"premis:messageDigest"`
	Originator string `xml:"premis:messageDigestOriginator"`
}

// Decoding side. Names are matched by local part so documents using any
// prefix for the PREMIS namespace load the same way.

type collectionIn struct {
	XMLName    xml.Name      `xml:"collection"`
	Accessions []accessionIn `xml:"accession"`
}

type accessionIn struct {
	Number     string   `xml:"number,attr"`
	Created    string   `xml:"created,attr"`
	IngestNote string   `xml:"ingest_note"`
	Nodes      []nodeIn `xml:",any"`
}

// nodeIn is either a file or, in nested legacy documents, a folder.
type nodeIn struct {
	XMLName      xml.Name
	Name         string    `xml:"name,attr"`
	Size         string    `xml:"size,attr"`
	LastModified string    `xml:"last_modified,attr"`
	Checksum     string    `xml:"checksum,attr"`
	MD5          string    `xml:"MD5,attr"`
	Object       *objectIn `xml:"object"`
	Nodes        []nodeIn  `xml:",any"`
}

type objectIn struct {
	Identifiers     []identifierIn     `xml:"objectIdentifier"`
	Characteristics *characteristicsIn `xml:"objectCharacteristics"`
	OriginalName    string             `xml:"originalName"`
}

type identifierIn struct {
	Type  string `xml:"objectIdentifierType"`
	Value string `xml:"objectIdentifierValue"`
}

type characteristicsIn struct {
	Fixity *fixityIn `xml:"fixity"`
	Size   string    `xml:"size"`
}

type fixityIn struct {
	Algorithm  string `xml:"messageDigestAlgorithm"`
	Digest     string `xml:"messageDigest"`
	Originator string `xml:"messageDigestOriginator"`
}

// Encode writes m as a UTF-8 manifest document with an XML declaration.
func Encode(w io.Writer, m *Manifest) error {
	originator := m.Originator
	if originator == "" {
		originator = DefaultOriginator
	}

	doc := collectionOut{
		Xmlns:       Namespace,
		XmlnsPremis: PremisNamespace,
		Accession: accessionOut{
			Number:     m.AccessionID,
			IngestNote: m.IngestNote,
			Files:      make([]fileOut, 0, m.Len()),
		},
	}
	if !m.CreatedAt.IsZero() {
		doc.Accession.Created = m.CreatedAt.UTC().Format(time.RFC3339)
	}

	for _, e := range m.entries {
		f := fileOut{
			Name:     e.RelativePath,
			Size:     e.Size,
			Checksum: e.Digest.Value,
			Object: objectOut{
				Identifier: identifierOut{Type: identifierTypeUUID, Value: e.PreservationID},
				Characteristics: characteristicsOut{
					Fixity: fixityOut{
						Algorithm:  e.Digest.Algorithm.String(),
						Digest:     e.Digest.Value,
						Originator: originator,
					},
					Size: e.Size,
				},
				OriginalName: e.OriginalName(),
			},
		}
		if !e.LastModified.IsZero() {
			f.LastModified = e.LastModified.UTC().Format(time.RFC3339Nano)
		}
		doc.Accession.Files = append(doc.Accession.Files, f)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Decode reads a flat manifest document. Nested folder documents are
// rejected; they have to go through ImportLegacy first.
func Decode(r io.Reader) (*Manifest, error) {
	return decode(r, false)
}

func decode(r io.Reader, allowNested bool) (*Manifest, error) {
	var doc collectionIn
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: errors.New("empty document")}
		}
		return nil, &ParseError{Err: err}
	}
	if doc.XMLName.Space != "" && doc.XMLName.Space != Namespace {
		return nil, &ParseError{Element: "collection", Err: fmt.Errorf("unexpected namespace %q", doc.XMLName.Space)}
	}
	if len(doc.Accessions) != 1 {
		return nil, &ParseError{Element: "collection", Err: fmt.Errorf("want exactly one accession, got %d", len(doc.Accessions))}
	}
	acc := doc.Accessions[0]
	number := strings.TrimSpace(acc.Number)
	if number == "" {
		return nil, &ParseError{Element: "accession", Err: errors.New("missing number attribute")}
	}

	m := New(number, time.Time{})
	m.IngestNote = strings.TrimSpace(acc.IngestNote)
	if acc.Created != "" {
		created, err := time.Parse(time.RFC3339, acc.Created)
		if err != nil {
			return nil, &ParseError{Element: "accession", Err: fmt.Errorf("created: %w", err)}
		}
		m.CreatedAt = created
	}

	b := &builder{m: m, allowNested: allowNested}
	if err := b.walk(acc.Nodes, "", 0); err != nil {
		return nil, err
	}
	return m, nil
}

type builder struct {
	m           *Manifest
	allowNested bool
}

// walk visits nodes in document order. In nested documents the top-level
// folder stands for the source root, so its name is not part of any path.
func (b *builder) walk(nodes []nodeIn, prefix string, depth int) error {
	for _, n := range nodes {
		switch n.XMLName.Local {
		case "file":
			name := n.Name
			if b.allowNested {
				name = legacyPath(name)
			}
			if prefix != "" {
				name = prefix + "/" + name
			}
			e, err := b.entry(n, name)
			if err != nil {
				return err
			}
			if err := b.m.Add(e); err != nil {
				return &ParseError{Element: fmt.Sprintf("file %q", name), Err: err}
			}
		case "folder":
			if !b.allowNested {
				return &ParseError{Element: fmt.Sprintf("folder %q", n.Name), Err: errors.New("nested manifest layout; import it to the flat layout first")}
			}
			next := prefix
			if depth > 0 {
				if n.Name == "" {
					return &ParseError{Element: "folder", Err: errors.New("missing name attribute")}
				}
				next = strings.TrimPrefix(prefix+"/"+legacyPath(n.Name), "/")
			}
			if err := b.walk(n.Nodes, next, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) entry(n nodeIn, name string) (Entry, error) {
	element := fmt.Sprintf("file %q", name)
	if n.Name == "" {
		return Entry{}, &ParseError{Element: "file", Err: errors.New("missing name attribute")}
	}

	e := Entry{RelativePath: name}

	if n.Size != "" {
		size, err := strconv.ParseInt(strings.TrimSpace(n.Size), 10, 64)
		if err != nil || size < 0 {
			return Entry{}, &ParseError{Element: element, Err: fmt.Errorf("invalid size %q", n.Size)}
		}
		e.Size = size
	}

	if n.LastModified != "" {
		t, err := parseTimestamp(n.LastModified)
		if err != nil {
			return Entry{}, &ParseError{Element: element, Err: err}
		}
		e.LastModified = t
	}

	var fixity *fixityIn
	if n.Object != nil {
		for _, id := range n.Object.Identifiers {
			if strings.EqualFold(strings.TrimSpace(id.Type), identifierTypeUUID) {
				e.PreservationID = strings.TrimSpace(id.Value)
				break
			}
		}
		if c := n.Object.Characteristics; c != nil {
			fixity = c.Fixity
			if n.Size == "" && c.Size != "" {
				if size, err := strconv.ParseInt(strings.TrimSpace(c.Size), 10, 64); err == nil {
					e.Size = size
				}
			}
		}
	}

	digest, err := entryDigest(n, fixity)
	if err != nil {
		return Entry{}, &ParseError{Element: element, Err: err}
	}
	e.Digest = digest

	if fixity != nil && b.m.Originator == "" {
		b.m.Originator = strings.TrimSpace(fixity.Originator)
	}
	return e, nil
}

// entryDigest picks the stored checksum. The checksum attribute is
// canonical; documents written before it existed carry an MD5 attribute.
func entryDigest(n nodeIn, fixity *fixityIn) (checksum.Digest, error) {
	var algName, value string
	if fixity != nil {
		algName = strings.TrimSpace(fixity.Algorithm)
		value = strings.TrimSpace(fixity.Digest)
	}
	switch {
	case n.Checksum != "":
		value = strings.TrimSpace(n.Checksum)
	case n.MD5 != "":
		algName = string(checksum.MD5)
		value = strings.TrimSpace(n.MD5)
	}
	if value == "" {
		return checksum.Digest{}, errors.New("missing checksum")
	}

	alg, err := checksum.ParseAlgorithm(algName)
	if err != nil {
		return checksum.Digest{}, err
	}
	d := checksum.Digest{Algorithm: alg, Value: strings.ToLower(value)}
	if err := d.Validate(); err != nil {
		return checksum.Digest{}, err
	}
	return d, nil
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO form older
// manifests used, which is read as local time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_modified %q", s)
	}
	return t.UTC(), nil
}
