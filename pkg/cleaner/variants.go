// pkg/cleaner/variants.go
package cleaner

import (
	"strings"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/checksum"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// cleanDates runs the ISO date sanitizer over every declared date column.
func cleanDates(p *pass) {
	for _, col := range p.cfg.DateColumns {
		p.apply(col, sanitizeDate)
	}
}

func cleanEmpresas(p *pass) error {
	p.apply("cnpj_basico", func(s string) *string { return digitsExact(s, 8) })
	p.apply("razao_social", trimToNull)
	p.apply("natureza_juridica_codigo", digitsOf)
	p.apply("qualificacao_responsavel", digitsOf)
	p.apply("capital_social", normalizeDecimalComma)
	p.apply("porte_empresa", digitsOf)
	p.apply("ente_federativo_responsavel", trimToNull)
	cleanDates(p)
	return nil
}

func cleanEstabelecimentos(p *pass) error {
	p.apply("cnpj_basico", func(s string) *string { return digitsExact(s, 8) })
	p.apply("cnpj_ordem", func(s string) *string { return digitsExact(s, 4) })
	p.apply("cnpj_dv", func(s string) *string { return digitsExact(s, 2) })

	for _, col := range []string{
		"identificador_matriz_filial", "situacao_cadastral",
		"motivo_situacao_cadastral", "pais_codigo",
		"cnae_fiscal_principal_codigo", "municipio_codigo",
	} {
		p.apply(col, digitsOf)
	}
	for _, col := range []string{
		"nome_fantasia", "nome_cidade_exterior", "tipo_logradouro",
		"logradouro", "numero", "complemento", "bairro", "situacao_especial",
	} {
		p.apply(col, trimToNull)
	}
	p.apply("cep", func(s string) *string { return digitsExact(s, 8) })
	p.apply("uf", normalizeUF)
	p.apply("correio_eletronico", func(s string) *string { return normalizeEmail(s, p.level) })
	for _, col := range []string{"telefone_1", "telefone_2", "fax"} {
		p.apply(col, func(s string) *string { return normalizePhone(s, p.level) })
	}
	for _, col := range []string{"ddd_1", "ddd_2", "ddd_fax"} {
		p.apply(col, func(s string) *string { return normalizeDDD(s, p.level) })
	}
	cleanDates(p)
	cleanSecondaryCNAE(p)
	// Check-digit validation runs at every repair level.
	checkCompositeCNPJ(p)
	if p.level == LevelAggressive {
		collectE164Examples(p)
		enrichMunicipio(p)
	}
	return nil
}

// cleanSecondaryCNAE normalizes the secondary-activity list and masks rows
// whose non-empty value yielded no valid code.
func cleanSecondaryCNAE(p *pass) {
	idx := p.chunk.ColumnIndex("cnae_fiscal_secundaria")
	if idx < 0 {
		return
	}
	var malformed []bool
	for i, row := range p.chunk.Rows {
		v := row[idx]
		if v == nil {
			continue
		}
		nv, ok := normalizeCNAEList(*v, p.level)
		if !ok {
			if malformed == nil {
				malformed = p.mask(model.ReasonMalformedArray)
			}
			malformed[i] = true
		}
		if p.level == LevelAggressive && nv != nil && *nv != *v {
			p.tel.ChangedCounts["cnae_fiscal_secundaria"]++
			if diffs := p.tel.SampleDiffs["cnae_fiscal_secundaria"]; len(diffs) < maxTelemetrySamples {
				p.tel.SampleDiffs["cnae_fiscal_secundaria"] = append(diffs,
					model.SampleDiff{Before: *v, After: *nv})
			}
		}
		row[idx] = nv
	}
}

// checkCompositeCNPJ verifies the check digits of the full establishment
// number (basico + ordem + dv) and masks rows that fail.
func checkCompositeCNPJ(p *pass) {
	const key = "estabelecimentos_cnpj"
	bi := p.chunk.ColumnIndex("cnpj_basico")
	oi := p.chunk.ColumnIndex("cnpj_ordem")
	di := p.chunk.ColumnIndex("cnpj_dv")
	if bi < 0 || oi < 0 || di < 0 {
		return
	}
	var invalid []bool
	for i, row := range p.chunk.Rows {
		b, o, d := row[bi], row[oi], row[di]
		if b == nil || o == nil || d == nil {
			continue
		}
		full := *b + *o + *d
		if checksum.ValidCNPJ(full) {
			continue
		}
		if invalid == nil {
			invalid = p.mask(model.ReasonInvalidCNPJ)
		}
		invalid[i] = true
		p.tel.InvalidIDs[key]++
		if ex := p.tel.InvalidIDExamples[key]; len(ex) < maxTelemetrySamples {
			p.tel.InvalidIDExamples[key] = append(ex, full)
		}
	}
}

// collectE164Examples records a bounded sample of primary numbers rendered
// as E.164 for telemetry. Rows are never rewritten.
func collectE164Examples(p *pass) {
	di := p.chunk.ColumnIndex("ddd_1")
	ti := p.chunk.ColumnIndex("telefone_1")
	if di < 0 || ti < 0 {
		return
	}
	for _, row := range p.chunk.Rows {
		if len(p.tel.E164Examples["telefone_1"]) >= maxTelemetrySamples {
			return
		}
		d, t := row[di], row[ti]
		if d == nil || t == nil {
			continue
		}
		p.tel.E164Examples["telefone_1"] = append(p.tel.E164Examples["telefone_1"], e164Example(*d, *t))
	}
}

// enrichMunicipio fills missing municipality and state codes from the
// postal-code index, recording an enrichment entry for each filled value.
func enrichMunicipio(p *pass) {
	if p.helpers.Geo == nil {
		return
	}
	mi := p.chunk.ColumnIndex("municipio_codigo")
	ui := p.chunk.ColumnIndex("uf")
	ci := p.chunk.ColumnIndex("cep")
	if ci < 0 {
		return
	}
	for _, row := range p.chunk.Rows {
		if row[ci] == nil {
			continue
		}
		if mi >= 0 && row[mi] == nil {
			if code, ok := p.helpers.Geo.MunicipioByCEP(*row[ci]); ok {
				c := code
				row[mi] = &c
				p.tel.ChangedCounts["municipio_codigo"]++
				p.tel.Enrichments = append(p.tel.Enrichments, model.Enrichment{
					Column: "municipio_codigo",
					Value:  code,
					Source: "cep_index",
				})
			}
		}
		if ui >= 0 && row[ui] == nil {
			if uf, ok := p.helpers.Geo.UFByCEP(*row[ci]); ok {
				u := uf
				row[ui] = &u
				p.tel.ChangedCounts["uf"]++
				p.tel.Enrichments = append(p.tel.Enrichments, model.Enrichment{
					Column: "uf",
					Value:  uf,
					Source: "cep_index",
				})
			}
		}
	}
}

func cleanSocios(p *pass) error {
	p.apply("cnpj_basico", func(s string) *string { return digitsExact(s, 8) })
	p.apply("nome_socio_ou_razao_social", trimToNull)
	p.apply("nome_representante_legal", trimToNull)
	for _, col := range []string{
		"identificador_socio", "qualificacao_socio_codigo", "pais_codigo",
		"qualificacao_representante_legal_codigo", "faixa_etaria",
	} {
		p.apply(col, digitsOf)
	}
	cleanSocioIdentifiers(p)
	cleanDates(p)
	return nil
}

// cleanSocioIdentifiers validates the partner identifier, which by length is
// either a person's CPF or a company's CNPJ, plus the legal representative's
// CPF. The check-digit validation runs at every repair level; invalid
// values become null and are counted.
func cleanSocioIdentifiers(p *pass) {
	p.apply("cnpj_cpf_socio", func(s string) *string {
		d := digitsOf(s)
		if d == nil {
			return nil
		}
		switch len(*d) {
		case 11:
			if !checksum.ValidCPF(*d) {
				p.recordInvalidID("socios_cpf", *d)
				return nil
			}
		case 14:
			if !checksum.ValidCNPJ(*d) {
				p.recordInvalidID("socios_cnpj", *d)
				return nil
			}
		default:
			return nil
		}
		return d
	})
	p.apply("representante_legal_cpf", func(s string) *string {
		d := digitsExact(s, 11)
		if d == nil {
			return nil
		}
		// All-zero is the registry's redaction sentinel.
		if *d == "00000000000" {
			return nil
		}
		if !checksum.ValidCPF(*d) {
			p.recordInvalidID("socios_representante_cpf", *d)
			return nil
		}
		return d
	})
}

func (p *pass) recordInvalidID(key, value string) {
	p.tel.InvalidIDs[key]++
	if ex := p.tel.InvalidIDExamples[key]; len(ex) < maxTelemetrySamples {
		p.tel.InvalidIDExamples[key] = append(ex, value)
	}
}

func cleanSimples(p *pass) error {
	p.apply("cnpj_basico", func(s string) *string { return digitsExact(s, 8) })
	p.apply("opcao_pelo_simples", p.normalizeOptFlag)
	p.apply("opcao_pelo_mei", p.normalizeOptFlag)
	cleanDates(p)
	return nil
}

// normalizeOptFlag uppercases the S/N opt-in flags; aggressive mode nulls
// anything outside the pair.
func (p *pass) normalizeOptFlag(s string) *string {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return nil
	}
	if p.level == LevelAggressive && t != "S" && t != "N" {
		return nil
	}
	return &t
}
