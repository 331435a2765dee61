// pkg/cleaner/cleaner_test.go
package cleaner

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

func mustConfig(t *testing.T, kind string) *model.TableConfig {
	t.Helper()
	cfg, err := model.ConfigFor(kind)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func chunkOf(kind string, cols []string, rows ...[]*string) *model.Chunk {
	c := model.NewChunk(kind, 0, cols)
	c.Rows = rows
	return c
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"none", "basic", "aggressive"} {
		lvl, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if lvl.String() != s {
			t.Errorf("round trip %q -> %q", s, lvl.String())
		}
	}
	if _, err := ParseLevel("max"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCleanLevelNoneLeavesChunkUntouched(t *testing.T) {
	cfg := mustConfig(t, "empresas")
	chunk := chunkOf("empresas", cfg.Columns,
		[]*string{str("112.22333"), str("  ACME  "), str("2062"), str("49"), str("1.000,00"), str("05"), nil},
	)
	before := chunk.Clone()

	e := NewEngine(LevelNone, nil, zap.NewNop())
	tel, masks, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunk.Rows, before.Rows) {
		t.Error("level none modified the chunk")
	}
	if len(masks) != 0 {
		t.Errorf("unexpected masks: %v", masks)
	}
	if tel.NullsAfter["ente_federativo_responsavel"] != 1 {
		t.Error("null counts missing at level none")
	}
}

func TestCleanEmpresasBasic(t *testing.T) {
	cfg := mustConfig(t, "empresas")
	chunk := chunkOf("empresas", cfg.Columns,
		[]*string{str("112.22333"), str("  ACME LTDA "), str("2062"), str("49"), str("1.000,00"), str("05"), str("  ")},
		[]*string{str("1234567"), str("BEZ SA"), str("2062"), str("49"), str("nan"), str("01"), nil},
	)

	e := NewEngine(LevelBasic, nil, zap.NewNop())
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}

	eq(t, chunk.Value(0, "cnpj_basico"), str("11222333"))
	eq(t, chunk.Value(0, "razao_social"), str("ACME LTDA"))
	eq(t, chunk.Value(0, "capital_social"), str("1000"))
	eq(t, chunk.Value(0, "ente_federativo_responsavel"), nil)
	eq(t, chunk.Value(1, "cnpj_basico"), nil) // seven digits, not eight
	eq(t, chunk.Value(1, "capital_social"), nil)

	if len(tel.ChangedCounts) != 0 || len(tel.SampleDiffs) != 0 {
		t.Error("basic mode must not record changed counts or sample diffs")
	}
	if tel.NullDeltas["capital_social"] != 1 {
		t.Errorf("capital_social null delta = %d, want 1", tel.NullDeltas["capital_social"])
	}
	if tel.NullDeltas["cnpj_basico"] != 1 {
		t.Errorf("cnpj_basico null delta = %d, want 1", tel.NullDeltas["cnpj_basico"])
	}
}

func TestCleanAggressiveRecordsSampleDiffs(t *testing.T) {
	cfg := mustConfig(t, "empresas")
	chunk := chunkOf("empresas", cfg.Columns,
		[]*string{str("11222333"), str("ACME"), str("2062"), str("49"), str("1.000,50"), str("05"), nil},
	)

	e := NewEngine(LevelAggressive, nil, zap.NewNop())
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if tel.ChangedCounts["capital_social"] != 1 {
		t.Errorf("changed count = %d, want 1", tel.ChangedCounts["capital_social"])
	}
	diffs := tel.SampleDiffs["capital_social"]
	if len(diffs) != 1 || diffs[0].Before != "1.000,50" || diffs[0].After != "1000.5" {
		t.Errorf("unexpected sample diffs: %+v", diffs)
	}
}

func estabRow(basico, ordem, dv string, extra map[string]string, cols []string) []*string {
	row := make([]*string, len(cols))
	vals := map[string]string{"cnpj_basico": basico, "cnpj_ordem": ordem, "cnpj_dv": dv}
	for k, v := range extra {
		vals[k] = v
	}
	for i, c := range cols {
		if v, ok := vals[c]; ok {
			s := v
			row[i] = &s
		}
	}
	return row
}

func TestCleanEstabelecimentosCompositeCNPJ(t *testing.T) {
	cfg := mustConfig(t, "estabelecimentos")
	chunk := chunkOf("estabelecimentos", cfg.Columns,
		estabRow("11222333", "0001", "81", nil, cfg.Columns), // valid check digits
		estabRow("11222333", "0001", "82", nil, cfg.Columns), // broken check digits
	)

	e := NewEngine(LevelAggressive, nil, zap.NewNop())
	tel, masks, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	mask := masks[model.ReasonInvalidCNPJ]
	if len(mask) != 2 || mask[0] || !mask[1] {
		t.Errorf("invalid_cnpj mask = %v, want [false true]", mask)
	}
	if tel.InvalidIDs["estabelecimentos_cnpj"] != 1 {
		t.Errorf("invalid id count = %d, want 1", tel.InvalidIDs["estabelecimentos_cnpj"])
	}
	if ex := tel.InvalidIDExamples["estabelecimentos_cnpj"]; len(ex) != 1 || ex[0] != "11222333000182" {
		t.Errorf("invalid id examples = %v", ex)
	}
}

func TestCleanEstabelecimentosBasicRunsChecksum(t *testing.T) {
	cfg := mustConfig(t, "estabelecimentos")
	chunk := chunkOf("estabelecimentos", cfg.Columns,
		estabRow("11222333", "0001", "82", nil, cfg.Columns),
	)
	e := NewEngine(LevelBasic, nil, zap.NewNop())
	tel, masks, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	mask := masks[model.ReasonInvalidCNPJ]
	if len(mask) != 1 || !mask[0] {
		t.Errorf("invalid_cnpj mask = %v, want [true]", mask)
	}
	if tel.InvalidIDs["estabelecimentos_cnpj"] != 1 {
		t.Errorf("invalid id count = %d, want 1", tel.InvalidIDs["estabelecimentos_cnpj"])
	}
}

func TestCleanEstabelecimentosBasicChecksUF(t *testing.T) {
	cfg := mustConfig(t, "estabelecimentos")
	chunk := chunkOf("estabelecimentos", cfg.Columns,
		estabRow("11222333", "0001", "81", map[string]string{"uf": "zz"}, cfg.Columns),
		estabRow("11222333", "0001", "81", map[string]string{"uf": "sp"}, cfg.Columns),
	)
	e := NewEngine(LevelBasic, nil, zap.NewNop())
	if _, _, err := e.Clean(cfg, chunk); err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "uf"), nil)
	eq(t, chunk.Value(1, "uf"), str("SP"))
}

func TestCleanEstabelecimentosSecondaryCNAE(t *testing.T) {
	cfg := mustConfig(t, "estabelecimentos")
	chunk := chunkOf("estabelecimentos", cfg.Columns,
		estabRow("11222333", "0001", "81", map[string]string{"cnae_fiscal_secundaria": "4721102,112"}, cfg.Columns),
		estabRow("11222333", "0001", "81", map[string]string{"cnae_fiscal_secundaria": "{,}"}, cfg.Columns),
	)
	e := NewEngine(LevelBasic, nil, zap.NewNop())
	_, masks, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "cnae_fiscal_secundaria"), str("{4721102,0000112}"))
	eq(t, chunk.Value(1, "cnae_fiscal_secundaria"), nil)
	mask := masks[model.ReasonMalformedArray]
	if len(mask) != 2 || mask[0] || !mask[1] {
		t.Errorf("malformed_array mask = %v, want [false true]", mask)
	}
}

func TestCleanEstabelecimentosGeoEnrichment(t *testing.T) {
	idx, err := readGeoIndex(strings.NewReader("01310;3550308;SP\n20040;3304557\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := mustConfig(t, "estabelecimentos")
	chunk := chunkOf("estabelecimentos", cfg.Columns,
		estabRow("11222333", "0001", "81", map[string]string{"cep": "01310100"}, cfg.Columns),
	)
	e := NewEngine(LevelAggressive, &Helpers{Geo: idx}, zap.NewNop())
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "municipio_codigo"), str("3550308"))
	eq(t, chunk.Value(0, "uf"), str("SP"))
	if len(tel.Enrichments) != 2 {
		t.Fatalf("enrichments = %+v", tel.Enrichments)
	}
	for _, e := range tel.Enrichments {
		if e.Source != "cep_index" {
			t.Errorf("enrichment source = %q, want cep_index", e.Source)
		}
	}

	// Prefixes without a state column never invent one.
	if _, ok := idx.UFByCEP("20040001"); ok {
		t.Error("UFByCEP returned a state for a two-field line")
	}
}

func TestCleanSociosIdentifierDispatch(t *testing.T) {
	cfg := mustConfig(t, "socios")
	mk := func(id, rep string) []*string {
		row := make([]*string, len(cfg.Columns))
		vals := map[string]string{
			"cnpj_basico":             "11222333",
			"cnpj_cpf_socio":          id,
			"representante_legal_cpf": rep,
		}
		for i, c := range cfg.Columns {
			if v, ok := vals[c]; ok {
				s := v
				row[i] = &s
			}
		}
		return row
	}
	chunk := chunkOf("socios", cfg.Columns,
		mk("529.982.247-25", "52998224725"),  // valid CPF partner
		mk("11222333000181", "00000000000"),  // valid CNPJ partner, redacted rep
		mk("52998224726", "111.444.777-35"),  // broken CPF check digit
		mk("123", "11144477735"),             // impossible length
	)

	e := NewEngine(LevelAggressive, nil, zap.NewNop())
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "cnpj_cpf_socio"), str("52998224725"))
	eq(t, chunk.Value(1, "cnpj_cpf_socio"), str("11222333000181"))
	eq(t, chunk.Value(1, "representante_legal_cpf"), nil)
	eq(t, chunk.Value(2, "cnpj_cpf_socio"), nil)
	eq(t, chunk.Value(3, "cnpj_cpf_socio"), nil)
	if tel.InvalidIDs["socios_cpf"] != 1 {
		t.Errorf("socios_cpf invalid count = %d, want 1", tel.InvalidIDs["socios_cpf"])
	}
}

func TestCleanSociosBasicRunsChecksum(t *testing.T) {
	cfg := mustConfig(t, "socios")
	row := make([]*string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		if c == "cnpj_basico" {
			v := "11222333"
			row[i] = &v
		}
		if c == "cnpj_cpf_socio" {
			v := "52998224726" // broken check digit
			row[i] = &v
		}
	}
	chunk := chunkOf("socios", cfg.Columns, row)

	e := NewEngine(LevelBasic, nil, zap.NewNop())
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "cnpj_cpf_socio"), nil)
	if tel.InvalidIDs["socios_cpf"] != 1 {
		t.Errorf("socios_cpf invalid count = %d, want 1", tel.InvalidIDs["socios_cpf"])
	}
}

func TestCleanSimplesOptFlags(t *testing.T) {
	cfg := mustConfig(t, "simples")
	mk := func(flag string) []*string {
		row := make([]*string, len(cfg.Columns))
		b, f := "11222333", flag
		row[0] = &b
		row[1] = &f
		return row
	}
	chunk := chunkOf("simples", cfg.Columns, mk("s"), mk("X"))

	e := NewEngine(LevelAggressive, nil, zap.NewNop())
	if _, _, err := e.Clean(cfg, chunk); err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "opcao_pelo_simples"), str("S"))
	eq(t, chunk.Value(1, "opcao_pelo_simples"), nil)
}

func TestCleanIsIdempotent(t *testing.T) {
	cfg := mustConfig(t, "estabelecimentos")
	chunk := chunkOf("estabelecimentos", cfg.Columns,
		estabRow("11222333", "0001", "81", map[string]string{
			"data_inicio_atividade":  "20200115",
			"cep":                    "01310-100",
			"uf":                     "sp",
			"correio_eletronico":     "USER@Example.com",
			"ddd_1":                  "(11)",
			"telefone_1":             "2223-3344",
			"cnae_fiscal_secundaria": "112,4721102",
		}, cfg.Columns),
	)

	e := NewEngine(LevelAggressive, nil, zap.NewNop())
	if _, _, err := e.Clean(cfg, chunk); err != nil {
		t.Fatal(err)
	}
	first := chunk.Clone()
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunk.Rows, first.Rows) {
		t.Error("second pass changed an already-clean chunk")
	}
	if len(tel.ChangedCounts) != 0 {
		t.Errorf("second pass reported changes: %v", tel.ChangedCounts)
	}
	if len(tel.NullDeltas) != 0 {
		t.Errorf("second pass reported null deltas: %v", tel.NullDeltas)
	}
}

func TestCleanDomainTablePassthrough(t *testing.T) {
	cfg := mustConfig(t, "paises")
	chunk := chunkOf("paises", cfg.Columns,
		[]*string{str(" 105 "), str(" BRASIL ")},
		[]*string{str("073"), str("")},
	)
	e := NewEngine(LevelBasic, nil, zap.NewNop())
	tel, _, err := e.Clean(cfg, chunk)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, chunk.Value(0, "codigo"), str("105"))
	eq(t, chunk.Value(0, "nome"), str("BRASIL"))
	eq(t, chunk.Value(1, "nome"), nil)
	if tel.NullDeltas["nome"] != 1 {
		t.Errorf("nome null delta = %d, want 1", tel.NullDeltas["nome"])
	}
}
