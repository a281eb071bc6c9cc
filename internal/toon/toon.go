// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/rulegraph/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a Report into TOON format.
func Encode(r *model.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(r.Root)))
	parts = append(parts, fmt.Sprintf("ranking: %s", encodeValue(r.Algorithm)))

	var sourceRows [][]string
	for i := range r.Sources {
		s := &r.Sources[i]
		status := "parsed"
		if s.Cached {
			status = "cached"
		}
		sourceRows = append(sourceRows, []string{
			s.Path,
			s.Language,
			strconv.Itoa(s.Entities),
			strconv.Itoa(s.Edges),
			status,
		})
	}
	parts = append(parts, formatTabular("sources", []string{"path", "language", "entities", "edges", "status"}, sourceRows))

	var entityRows [][]string
	for i := range r.Entities {
		e := &r.Entities[i]
		entityRows = append(entityRows, []string{
			e.Source,
			e.Name,
			e.Kind.String(),
			strconv.Itoa(e.Line),
			strconv.Itoa(e.Inbound),
			strconv.Itoa(e.Outbound),
			strconv.Itoa(e.Closure),
			fmt.Sprintf("%.4f", e.Score),
		})
	}
	parts = append(parts, formatTabular("entities",
		[]string{"source", "name", "kind", "line", "inbound", "outbound", "closure", "score"}, entityRows))

	var edgeRows [][]string
	for i := range r.Edges {
		e := &r.Edges[i]
		edgeRows = append(edgeRows, []string{e.Source, e.From, e.To, e.Via})
	}
	parts = append(parts, formatTabular("edges", []string{"source", "from", "to", "via"}, edgeRows))

	parts = append(parts, formatTabular("core", []string{"source", "name"}, memberRows(r.Core)))

	if len(r.Disjoint) > 0 {
		parts = append(parts, formatTabular("disjoint", []string{"source", "name"}, memberRows(r.Disjoint)))
	}

	if len(r.Ambiguous) > 0 {
		var rows [][]string
		for _, a := range r.Ambiguous {
			rows = append(rows, []string{a.Source, a.Name, a.Chosen, strings.Join(a.Candidates, "|")})
		}
		parts = append(parts, formatTabular("ambiguous", []string{"source", "name", "chosen", "candidates"}, rows))
	}

	return strings.Join(parts, "\n")
}

// EncodeClosure converts a closure query result into TOON format.
func EncodeClosure(c *model.Closure) string {
	direction := "forward"
	if c.Reverse {
		direction = "reverse"
	}
	parts := []string{
		fmt.Sprintf("source: %s", encodeValue(c.Source)),
		fmt.Sprintf("name: %s", encodeValue(c.Name)),
		fmt.Sprintf("direction: %s", direction),
		formatTabular("closure", []string{"source", "name"}, memberRows(c.Members)),
	}
	return strings.Join(parts, "\n")
}

func memberRows(members []model.Member) [][]string {
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{m.Source, m.Name})
	}
	return rows
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
