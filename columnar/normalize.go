/*
normalize.go - key/value normalization and header-echo detection

PURPOSE:
  Upstream extracts are stitched together from several exports with
  inconsistent padding, casing and embedded header rows. This file holds the
  small normalization kernel that lets the client and sales tables join:
  - NormalizeKey: trim + strip leading zeros from purely numeric ids
  - looksLikeHeader: detect rows whose field values echo column names
  - ParseAmount: Brazilian decimal format ("1.234,56") and plain format
  - ParseDate: the two date layouts seen upstream

FAILURE MODEL:
  Individual malformed rows are dropped silently (spec'd behavior); only a
  wholly empty ingestion is an error, raised by store.go.
*/
package columnar

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// forbiddenTokens are column names that, when they appear as a field VALUE,
// mark the row as an echoed header from a concatenated export.
var forbiddenTokens = map[string]bool{
	"SUPERV": true, "CODUSUR": true, "CODSUPERVISOR": true, "NOME": true,
	"CODCLI": true, "PRODUTO": true, "DESCRICAO": true, "FORNECEDOR": true,
	"OBSERVACAOFOR": true, "CODFOR": true, "QTVENDA": true, "VLVENDA": true,
	"VLBONIFIC": true, "TOTPESOLIQ": true, "ESTOQUEUNIT": true,
	"TIPOVENDA": true, "FILIAL": true, "ESTOQUECX": true, "SUPERVISOR": true,
	"PASTA": true, "RAMO": true, "ATIVIDADE": true, "CIDADE": true,
	"MUNICIPIO": true, "BAIRRO": true, "CÓDIGO": true, "CODIGO": true,
}

// NormalizeKey trims an id and strips leading zeros from purely numeric
// values, so "0042", " 42" and "42" address the same entity.
func NormalizeKey(key string) string {
	s := strings.TrimSpace(key)
	if s == "" {
		return ""
	}
	numeric := true
	for _, r := range s {
		if r < '0' || r > '9' {
			numeric = false
			break
		}
	}
	if !numeric {
		return s
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// looksLikeHeader reports whether any of the row's identifying fields echo
// a known column name.
func looksLikeHeader(row RawRow) bool {
	for _, col := range []string{ColClientID, ColProduct, ColSupervisor, ColSellerName, ColSaleType, ColSellerID} {
		v := strings.ToUpper(strings.TrimSpace(row[col]))
		if v != "" && forbiddenTokens[v] {
			return true
		}
	}
	return false
}

// ParseAmount parses an upstream numeric value. Handles the Brazilian
// format "1.234,56" as well as plain "1234.56"; anything unparseable is 0.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var dateLayouts = []string{"02/01/2006", "2006-01-02", "02/01/06"}

// ParseDate parses an upstream date. Returns the zero time when the value
// does not match any known layout.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// normalizeBranch applies the documented branch reassignment: single-digit
// branch codes are padded to the two-digit form used everywhere downstream.
func normalizeBranch(branch string) string {
	switch strings.TrimSpace(branch) {
	case "5":
		return "05"
	case "8":
		return "08"
	default:
		return strings.TrimSpace(branch)
	}
}

// supplierFolder derives the planning folder when the supplier note field
// is empty or zeroed upstream.
func supplierFolder(note, supplier string) string {
	note = strings.TrimSpace(note)
	if note != "" && note != "0" && note != "00" {
		return note
	}
	if strings.Contains(strings.ToUpper(supplier), "PEPSICO") {
		return "PEPSICO"
	}
	return "MULTIMARCAS"
}
