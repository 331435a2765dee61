// pkg/pipeline/reader.go
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ChunkReader streams no-header semicolon-delimited source files as bounded
// chunks. The registry publishes these files in Latin-1; encoding "auto"
// probes each file and falls back to Latin-1 when it is not valid UTF-8.
type ChunkReader struct {
	chunkSize int
	encoding  string // "auto", "utf-8", or "latin1"
	logger    *zap.Logger
}

// NewChunkReader builds a reader producing chunks of at most chunkSize rows.
func NewChunkReader(chunkSize int, encoding string, logger *zap.Logger) *ChunkReader {
	return &ChunkReader{
		chunkSize: chunkSize,
		encoding:  encoding,
		logger:    logger,
	}
}

// ReadFile streams one source file, invoking fn for every chunk in order.
// Returns the number of malformed lines dropped. fn errors abort the read.
func (r *ChunkReader) ReadFile(cfg *model.TableConfig, path string, fn func(*model.Chunk) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return r.read(cfg, f, fn)
}

func (r *ChunkReader) read(cfg *model.TableConfig, src io.Reader, fn func(*model.Chunk) error) (int, error) {
	decoded, err := r.decode(src)
	if err != nil {
		return 0, err
	}

	cr := csv.NewReader(decoded)
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	malformed := 0
	chunkIndex := 0
	chunk := model.NewChunk(cfg.Kind, chunkIndex, cfg.Columns)

	flush := func() error {
		if chunk.RowCount() == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		chunkIndex++
		chunk = model.NewChunk(cfg.Kind, chunkIndex, cfg.Columns)
		return nil
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed++
			continue
		}
		if len(rec) > len(cfg.Columns) {
			// Extra separators mean the line cannot be mapped to columns.
			malformed++
			continue
		}
		row := make([]*string, len(cfg.Columns))
		for i, v := range rec {
			if v == "" {
				continue
			}
			s := v
			row[i] = &s
		}
		chunk.Rows = append(chunk.Rows, row)
		if chunk.RowCount() >= r.chunkSize {
			if err := flush(); err != nil {
				return malformed, err
			}
		}
	}
	if err := flush(); err != nil {
		return malformed, err
	}

	if malformed > 0 && r.logger != nil {
		r.logger.Warn("Dropped malformed lines",
			zap.String("kind", cfg.Kind),
			zap.Int("lines", malformed))
	}
	return malformed, nil
}

// decode wraps the source with the configured character decoding. In auto
// mode a UTF-8 BOM or valid UTF-8 prefix selects UTF-8, anything else is
// treated as Latin-1, which decodes every byte sequence.
func (r *ChunkReader) decode(src io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(src, 64*1024)

	switch r.encoding {
	case "utf-8", "utf8":
		return stripBOM(br), nil
	case "latin1", "iso-8859-1":
		return transform.NewReader(br, charmap.ISO8859_1.NewDecoder()), nil
	case "auto", "":
	default:
		return nil, fmt.Errorf("unsupported encoding %q", r.encoding)
	}

	head, err := br.Peek(64 * 1024)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("probing encoding: %w", err)
	}
	if bytes.HasPrefix(head, utf8BOM) || validUTF8Prefix(head) {
		return stripBOM(br), nil
	}
	return transform.NewReader(br, charmap.ISO8859_1.NewDecoder()), nil
}

func stripBOM(br *bufio.Reader) io.Reader {
	head, _ := br.Peek(len(utf8BOM))
	if bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// validUTF8Prefix checks the sampled head, ignoring a rune the sample
// boundary may have cut in half.
func validUTF8Prefix(b []byte) bool {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		if r, _ := utf8.DecodeLastRune(b); r != utf8.RuneError {
			break
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}
