// pkg/model/uf.go
package model

// UFSet is the closed set of Brazilian federative-unit codes accepted in
// state columns. "EX" marks establishments abroad in the source files.
var UFSet = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {},
	"ES": {}, "GO": {}, "MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {},
	"PB": {}, "PR": {}, "PE": {}, "PI": {}, "RJ": {}, "RN": {}, "RS": {},
	"RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {}, "EX": {},
}

// ValidUF reports membership in the federative-unit set.
func ValidUF(code string) bool {
	_, ok := UFSet[code]
	return ok
}
