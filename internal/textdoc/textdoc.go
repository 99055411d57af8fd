package textdoc

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/roach88/blockdoc/internal/block"
)

// Header is the first line of every text document.
const Header = "# BLOCKDOC v2"

// sniffLimit bounds how much of a file Sniff reads looking for the header.
const sniffLimit = 256

// ErrMalformed is returned for input that is not a valid text document.
var ErrMalformed = errors.New("malformed text document")

type body struct {
	Blocks []entry `yaml:"blocks"`
}

// entry is the YAML shape of one block. Fields unused by a kind stay empty.
type entry struct {
	Type         block.Kind `yaml:"type"`
	Text         string     `yaml:"text,omitempty"`
	Source       string     `yaml:"source,omitempty"`
	Path         string     `yaml:"path,omitempty"`
	MIME         string     `yaml:"mime,omitempty"`
	Alt          string     `yaml:"alt,omitempty"`
	Data         string     `yaml:"data,omitempty"`
	Format       string     `yaml:"format,omitempty"`
	RenderedData string     `yaml:"rendered_data,omitempty"`
	RenderedHash string     `yaml:"rendered_hash,omitempty"`
	Error        string     `yaml:"error,omitempty"`
}

// IsHeader reports whether line is the text-format header, ignoring
// surrounding whitespace.
func IsHeader(line string) bool {
	return strings.TrimSpace(line) == Header
}

// Sniff reports whether r starts with the header line. Only the first line
// is read.
func Sniff(r io.Reader) bool {
	line, err := bufio.NewReader(io.LimitReader(r, sniffLimit)).ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	return IsHeader(line)
}

// Encode serializes blocks as a text document.
func Encode(blocks []block.Block) ([]byte, error) {
	var doc body
	doc.Blocks = make([]entry, 0, len(blocks))
	for i, b := range blocks {
		e, err := encodeBlock(b)
		if err != nil {
			return nil, fmt.Errorf("encode block %d: %w", i, err)
		}
		doc.Blocks = append(doc.Blocks, e)
	}

	var buf bytes.Buffer
	buf.WriteString(Header + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a text document.
func Decode(data []byte) ([]block.Block, error) {
	first, rest, _ := bytes.Cut(data, []byte("\n"))
	if !IsHeader(string(first)) {
		return nil, fmt.Errorf("%w: missing %q header", ErrMalformed, Header)
	}
	if !utf8.Valid(rest) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", ErrMalformed)
	}

	var doc body
	dec := yaml.NewDecoder(bytes.NewReader(rest))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	blocks := make([]block.Block, 0, len(doc.Blocks))
	for i, e := range doc.Blocks {
		b, err := decodeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrMalformed, i, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Load reads the text document at path.
func Load(path string) ([]block.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text document: %w", err)
	}
	blocks, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return blocks, nil
}

// Save writes blocks to path, replacing any existing file atomically.
func Save(path string, blocks []block.Block) error {
	data, err := Encode(blocks)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write text document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write text document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace text document: %w", err)
	}
	return nil
}

func encodeBlock(b block.Block) (entry, error) {
	switch b := b.(type) {
	case *block.Text:
		return entry{Type: block.KindText, Text: b.Text}, nil
	case *block.Image:
		e := entry{Type: block.KindImage, Path: b.Path, MIME: b.MIME, Alt: b.Alt}
		if len(b.Data) > 0 {
			e.Data = base64.StdEncoding.EncodeToString(b.Data)
		}
		return e, nil
	case *block.ThreeScene:
		return entry{Type: block.KindThree, Source: b.Source}, nil
	case *block.RenderedCode:
		return entry{
			Type:         block.KindRendered,
			Source:       b.Source,
			Format:       string(block.ParseFormat(string(b.Format))),
			RenderedData: b.RenderedData,
			RenderedHash: b.RenderedHash,
			Error:        b.LastError,
		}, nil
	case *block.Math:
		return entry{Type: block.KindMath, Source: b.Source}, nil
	default:
		return entry{}, fmt.Errorf("unsupported block type %T", b)
	}
}

func decodeEntry(e entry) (block.Block, error) {
	switch e.Type {
	case block.KindText:
		return &block.Text{Text: e.Text}, nil
	case block.KindImage:
		img := &block.Image{Path: e.Path, MIME: e.MIME, Alt: e.Alt}
		if e.Data != "" {
			data, err := base64.StdEncoding.DecodeString(e.Data)
			if err != nil {
				return nil, fmt.Errorf("image data: %v", err)
			}
			img.Data = data
		}
		return img, nil
	case block.KindThree:
		return &block.ThreeScene{Source: e.Source}, nil
	case block.KindRendered:
		return &block.RenderedCode{
			Source:       e.Source,
			Format:       block.ParseFormat(e.Format),
			RenderedData: e.RenderedData,
			RenderedHash: e.RenderedHash,
			LastError:    e.Error,
		}, nil
	case block.KindMath:
		return &block.Math{Source: e.Source}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", e.Type)
	}
}
