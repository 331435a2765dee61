// pkg/validate/referential_test.go
package validate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// stubDomains serves fixed sets without a database. Unknown keys come back
// as empty sets, mirroring an unpopulated domain table.
type stubDomains struct {
	sets map[string]map[string]struct{}
}

func (s *stubDomains) Domain(_ context.Context, table, column string) (map[string]struct{}, error) {
	return s.sets[table+"."+column], nil
}

// failingDomains simulates an unreachable database.
type failingDomains struct{}

func (failingDomains) Domain(context.Context, string, string) (map[string]struct{}, error) {
	return nil, fmt.Errorf("connection refused")
}

func newStub() *stubDomains {
	return &stubDomains{sets: map[string]map[string]struct{}{
		"paises.codigo":     {"105": {}, "073": {}},
		"municipios.codigo": {"3550308": {}},
		"cnaes.codigo":      {"4721102": {}},
	}}
}

func str(s string) *string { return &s }

func estabChunk(t *testing.T, rows ...map[string]string) (*model.TableConfig, *model.Chunk) {
	t.Helper()
	cfg, err := model.ConfigFor("estabelecimentos")
	if err != nil {
		t.Fatal(err)
	}
	chunk := model.NewChunk(cfg.Kind, 0, cfg.Columns)
	for _, vals := range rows {
		row := make([]*string, len(cfg.Columns))
		for i, c := range cfg.Columns {
			if v, ok := vals[c]; ok {
				s := v
				row[i] = &s
			}
		}
		chunk.Rows = append(chunk.Rows, row)
	}
	return cfg, chunk
}

func TestCheckCritical(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333", "cnpj_ordem": "0001", "cnpj_dv": "81"},
		map[string]string{"cnpj_basico": "11222333", "cnpj_dv": "81"}, // ordem missing
		map[string]string{},
	)
	mask, fields := CheckCritical(cfg, chunk)
	want := []bool{false, true, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
	if len(fields[1]) != 1 || fields[1][0] != "cnpj_ordem" {
		t.Errorf("fields[1] = %v", fields[1])
	}
	if len(fields[2]) != 3 {
		t.Errorf("fields[2] = %v, want all three key parts", fields[2])
	}
}

func TestValidateRelaxedNullsAndMasks(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333", "pais_codigo": "105", "municipio_codigo": "3550308", "uf": "SP"},
		map[string]string{"cnpj_basico": "11222333", "pais_codigo": "999", "uf": "SP"},
		map[string]string{"cnpj_basico": "11222333", "uf": "XX"},
	)
	v := NewValidator(ModeRelaxed, newStub(), zap.NewNop())
	res, err := v.Validate(context.Background(), cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mask[0] || !res.Mask[1] || !res.Mask[2] {
		t.Errorf("mask = %v, want [false true true]", res.Mask)
	}
	if chunk.Value(1, "pais_codigo") != nil {
		t.Error("unknown pais_codigo not nulled")
	}
	if chunk.Value(0, "pais_codigo") == nil {
		t.Error("known pais_codigo was nulled")
	}
	if chunk.Value(2, "uf") != nil {
		t.Error("unknown uf not nulled")
	}
	if res.Counts["pais_codigo"] != 1 || res.Counts["uf"] != 1 {
		t.Errorf("counts = %v", res.Counts)
	}
	if got := res.Fields[1]; len(got) != 1 || got[0] != "pais_codigo" {
		t.Errorf("fields[1] = %v", got)
	}
	if !res.Violated() {
		t.Error("Violated() = false")
	}
}

func TestValidateStrictFailsWithSamples(t *testing.T) {
	rows := []map[string]string{}
	for i := 0; i < 8; i++ {
		rows = append(rows, map[string]string{
			"cnpj_basico": "11222333",
			"pais_codigo": fmt.Sprintf("90%d", i),
		})
	}
	cfg, chunk := estabChunk(t, rows...)
	before := chunk.Clone()

	v := NewValidator(ModeStrict, newStub(), zap.NewNop())
	_, err := v.Validate(context.Background(), cfg, chunk)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Column != "pais_codigo" || verr.Count != 8 {
		t.Errorf("got column %s count %d", verr.Column, verr.Count)
	}
	if len(verr.Samples) != maxViolationSamples {
		t.Errorf("samples = %v, want %d entries", verr.Samples, maxViolationSamples)
	}
	// Strict mode must not rewrite the chunk.
	if chunk.Value(0, "pais_codigo") == nil || *chunk.Value(0, "pais_codigo") != *before.Value(0, "pais_codigo") {
		t.Error("strict mode modified the chunk")
	}

	tel := model.NewRepairTelemetry()
	if verr.AttachTelemetry(tel).Telemetry != tel {
		t.Error("telemetry not attached")
	}
}

func TestValidateStrictPassesCleanChunk(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333", "pais_codigo": "105", "municipio_codigo": "3550308", "cnae_fiscal_principal_codigo": "4721102", "uf": "RJ"},
	)
	v := NewValidator(ModeStrict, newStub(), zap.NewNop())
	res, err := v.Validate(context.Background(), cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if res.Violated() {
		t.Error("clean chunk reported violations")
	}
}

func TestValidateNullReferencesAreIgnored(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333"},
	)
	v := NewValidator(ModeStrict, newStub(), zap.NewNop())
	if _, err := v.Validate(context.Background(), cfg, chunk); err != nil {
		t.Fatalf("null references must not violate: %v", err)
	}
}

func TestValidateRelaxedEmptyDomainSkipsCheck(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333", "pais_codigo": "999", "uf": "SP"},
	)
	// No domains populated at all: relaxed mode degrades to unchecked
	// writes instead of nulling or failing.
	v := NewValidator(ModeRelaxed, &stubDomains{sets: map[string]map[string]struct{}{}}, zap.NewNop())
	res, err := v.Validate(context.Background(), cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if res.Violated() {
		t.Errorf("mask = %v, want untouched rows", res.Mask)
	}
	if chunk.Value(0, "pais_codigo") == nil {
		t.Error("unchecked value was nulled")
	}
}

func TestValidateStrictEmptyDomainFails(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333", "pais_codigo": "105"},
	)
	v := NewValidator(ModeStrict, &stubDomains{sets: map[string]map[string]struct{}{}}, zap.NewNop())
	if _, err := v.Validate(context.Background(), cfg, chunk); err == nil {
		t.Fatal("expected hard error for empty domain in strict mode")
	}
}

func TestValidateDomainErrorPropagates(t *testing.T) {
	cfg, chunk := estabChunk(t,
		map[string]string{"cnpj_basico": "11222333", "pais_codigo": "105"},
	)
	v := NewValidator(ModeRelaxed, failingDomains{}, zap.NewNop())
	if _, err := v.Validate(context.Background(), cfg, chunk); err == nil {
		t.Fatal("expected error for unreachable domain source")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("strict"); err != nil || m != ModeStrict {
		t.Errorf("ParseMode(strict) = %v, %v", m, err)
	}
	if m, err := ParseMode("relaxed"); err != nil || m != ModeRelaxed {
		t.Errorf("ParseMode(relaxed) = %v, %v", m, err)
	}
	if _, err := ParseMode("pedantic"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
