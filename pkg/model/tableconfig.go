// pkg/model/tableconfig.go
package model

import "fmt"

// ForeignKey describes a reference-code column whose values must exist in a
// domain table. An empty DomainTable means the column is checked against a
// built-in enumerated set (currently only the UF state codes).
type ForeignKey struct {
	Column       string
	DomainTable  string
	DomainColumn string
}

// TableConfig is the static descriptor for one entity kind of the source
// release. Source files have no header, so Columns carries the positional
// column order. Configs are immutable after startup.
type TableConfig struct {
	Kind           string   // registry key, also the source sub-directory name
	TableName      string   // destination table
	Columns        []string // positional order in the source files
	CriticalFields []string // null here makes the row unusable
	DateColumns    []string // YYYYMMDD columns sanitized to ISO dates
	ForeignKeys    []ForeignKey
}

// HasColumn reports whether the config declares the named column.
func (tc *TableConfig) HasColumn(name string) bool {
	for _, c := range tc.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// LoadOrder is the declared processing order. Domain tables come first so
// that referential validation of the fact tables can trust the cache.
var LoadOrder = []string{
	"paises",
	"municipios",
	"qualificacoes",
	"naturezas",
	"cnaes",
	"empresas",
	"estabelecimentos",
	"simples",
	"socios",
}

var configs = map[string]*TableConfig{
	"paises": {
		Kind:      "paises",
		TableName: "paises",
		Columns:   []string{"codigo", "nome"},
	},
	"municipios": {
		Kind:      "municipios",
		TableName: "municipios",
		Columns:   []string{"codigo", "nome"},
	},
	"qualificacoes": {
		Kind:      "qualificacoes",
		TableName: "qualificacoes_socios",
		Columns:   []string{"codigo", "nome"},
	},
	"naturezas": {
		Kind:      "naturezas",
		TableName: "naturezas_juridicas",
		Columns:   []string{"codigo", "nome"},
	},
	"cnaes": {
		Kind:      "cnaes",
		TableName: "cnaes",
		Columns:   []string{"codigo", "nome"},
	},
	"empresas": {
		Kind:      "empresas",
		TableName: "empresas",
		Columns: []string{
			"cnpj_basico",
			"razao_social",
			"natureza_juridica_codigo",
			"qualificacao_responsavel",
			"capital_social",
			"porte_empresa",
			"ente_federativo_responsavel",
		},
		CriticalFields: []string{"cnpj_basico"},
		ForeignKeys: []ForeignKey{
			{Column: "natureza_juridica_codigo", DomainTable: "naturezas_juridicas", DomainColumn: "codigo"},
			{Column: "qualificacao_responsavel", DomainTable: "qualificacoes_socios", DomainColumn: "codigo"},
		},
	},
	"estabelecimentos": {
		Kind:      "estabelecimentos",
		TableName: "estabelecimentos",
		Columns: []string{
			"cnpj_basico",
			"cnpj_ordem",
			"cnpj_dv",
			"identificador_matriz_filial",
			"nome_fantasia",
			"situacao_cadastral",
			"data_situacao_cadastral",
			"motivo_situacao_cadastral",
			"nome_cidade_exterior",
			"pais_codigo",
			"data_inicio_atividade",
			"cnae_fiscal_principal_codigo",
			"cnae_fiscal_secundaria",
			"tipo_logradouro",
			"logradouro",
			"numero",
			"complemento",
			"bairro",
			"cep",
			"uf",
			"municipio_codigo",
			"ddd_1",
			"telefone_1",
			"ddd_2",
			"telefone_2",
			"ddd_fax",
			"fax",
			"correio_eletronico",
			"situacao_especial",
			"data_situacao_especial",
		},
		CriticalFields: []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"},
		DateColumns: []string{
			"data_situacao_cadastral",
			"data_inicio_atividade",
			"data_situacao_especial",
		},
		ForeignKeys: []ForeignKey{
			{Column: "pais_codigo", DomainTable: "paises", DomainColumn: "codigo"},
			{Column: "municipio_codigo", DomainTable: "municipios", DomainColumn: "codigo"},
			{Column: "cnae_fiscal_principal_codigo", DomainTable: "cnaes", DomainColumn: "codigo"},
			{Column: "uf"}, // built-in state-code set
		},
	},
	"socios": {
		Kind:      "socios",
		TableName: "socios",
		Columns: []string{
			"cnpj_basico",
			"identificador_socio",
			"nome_socio_ou_razao_social",
			"cnpj_cpf_socio",
			"qualificacao_socio_codigo",
			"data_entrada_sociedade",
			"pais_codigo",
			"representante_legal_cpf",
			"nome_representante_legal",
			"qualificacao_representante_legal_codigo",
			"faixa_etaria",
		},
		CriticalFields: []string{"cnpj_basico", "cnpj_cpf_socio"},
		DateColumns:    []string{"data_entrada_sociedade"},
		ForeignKeys: []ForeignKey{
			{Column: "pais_codigo", DomainTable: "paises", DomainColumn: "codigo"},
			{Column: "qualificacao_socio_codigo", DomainTable: "qualificacoes_socios", DomainColumn: "codigo"},
			{Column: "qualificacao_representante_legal_codigo", DomainTable: "qualificacoes_socios", DomainColumn: "codigo"},
		},
	},
	"simples": {
		Kind:      "simples",
		TableName: "simples",
		Columns: []string{
			"cnpj_basico",
			"opcao_pelo_simples",
			"data_opcao_pelo_simples",
			"data_exclusao_do_simples",
			"opcao_pelo_mei",
			"data_opcao_pelo_mei",
			"data_exclusao_do_mei",
		},
		CriticalFields: []string{"cnpj_basico"},
		DateColumns: []string{
			"data_opcao_pelo_simples",
			"data_exclusao_do_simples",
			"data_opcao_pelo_mei",
			"data_exclusao_do_mei",
		},
	},
}

// ConfigFor returns the table config for an entity kind.
func ConfigFor(kind string) (*TableConfig, error) {
	cfg, ok := configs[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return cfg, nil
}

// Kinds returns every configured entity kind in load order.
func Kinds() []string {
	out := make([]string, len(LoadOrder))
	copy(out, LoadOrder)
	return out
}
