// pkg/cleaner/geo.go
package cleaner

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// GeoIndex maps postal-code prefixes to IBGE municipality codes and state
// codes. It is built once at startup from an auxiliary semicolon-separated
// file with lines of the form "01310;3550308" or "01310;3550308;SP" and is
// read-only afterwards.
type GeoIndex struct {
	byPrefix map[string]geoEntry
}

type geoEntry struct {
	municipio string
	uf        string
}

// cepPrefixLen is the leading digit count used for lookups. Five digits is
// the finest granularity the auxiliary file provides.
const cepPrefixLen = 5

// LoadGeoIndex reads the auxiliary postal-code file.
func LoadGeoIndex(path string) (*GeoIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geo index: %w", err)
	}
	defer f.Close()
	return readGeoIndex(f)
}

func readGeoIndex(r io.Reader) (*GeoIndex, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	idx := &GeoIndex{byPrefix: make(map[string]geoEntry)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading geo index: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		prefix := strings.TrimSpace(rec[0])
		code := strings.TrimSpace(rec[1])
		if len(prefix) < cepPrefixLen || !isDigits(prefix) || !isDigits(code) {
			continue
		}
		entry := geoEntry{municipio: code}
		if len(rec) > 2 {
			uf := strings.ToUpper(strings.TrimSpace(rec[2]))
			if model.ValidUF(uf) {
				entry.uf = uf
			}
		}
		idx.byPrefix[prefix[:cepPrefixLen]] = entry
	}
	return idx, nil
}

// MunicipioByCEP resolves an eight-digit postal code to a municipality code.
func (g *GeoIndex) MunicipioByCEP(cep string) (string, bool) {
	e, ok := g.lookup(cep)
	return e.municipio, ok
}

// UFByCEP resolves a postal code to a state code, when the index file
// carried one for the prefix.
func (g *GeoIndex) UFByCEP(cep string) (string, bool) {
	e, ok := g.lookup(cep)
	return e.uf, ok && e.uf != ""
}

func (g *GeoIndex) lookup(cep string) (geoEntry, bool) {
	if g == nil || len(cep) < cepPrefixLen {
		return geoEntry{}, false
	}
	e, ok := g.byPrefix[cep[:cepPrefixLen]]
	return e, ok
}

// Len returns how many prefixes the index holds.
func (g *GeoIndex) Len() int {
	if g == nil {
		return 0
	}
	return len(g.byPrefix)
}
