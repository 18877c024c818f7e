package fhir

import (
	"fmt"
	"strings"
	"time"
)

// Column names of the search_param table.
const (
	colTokenSystem  = "sp.value_token_system"
	colTokenCode    = "sp.value_token_code"
	colString       = "sp.value_string"
	colDateStart    = "COALESCE(sp.value_date_start, '-infinity'::timestamptz)"
	colDateEnd      = "COALESCE(sp.value_date_end, 'infinity'::timestamptz)"
	colRefCanonical = "sp.value_reference_canonical"
	colRefID        = "sp.value_reference_id"
	colQtyValue     = "sp.value_quantity_value"
	colQtyUnit      = "sp.value_quantity_unit"
	colQtySystem    = "sp.value_quantity_system"
	colURI          = "sp.value_uri"
	colNumber       = "sp.value_number"
)

// SearchQuery builds the SQL that selects indexed resources matching a set of
// parameter queries. Each ParamQuery becomes an EXISTS over search_param
// correlated with the indexed_resource row aliased "ir".
type SearchQuery struct {
	where string
	args  []interface{}
	idx   int
}

// NewSearchQuery starts a query over resources of one type.
func NewSearchQuery(resourceType string) *SearchQuery {
	return &SearchQuery{
		where: " AND ir.resource_type = $1",
		args:  []interface{}{resourceType},
		idx:   2,
	}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// AddParamQuery adds one ANDed parameter with its ORed values.
func (q *SearchQuery) AddParamQuery(pq ParamQuery) {
	exists := fmt.Sprintf("SELECT 1 FROM search_param sp WHERE sp.resource_type = ir.resource_type AND sp.resource_id = ir.resource_id AND sp.param_name = $%d", q.idx)
	q.args = append(q.args, pq.Name)
	q.idx++

	if pq.Missing != nil {
		if *pq.Missing {
			q.where += " AND NOT EXISTS (" + exists + ")"
		} else {
			q.where += " AND EXISTS (" + exists + ")"
		}
		return
	}

	ors := make([]string, 0, len(pq.Values))
	for _, v := range pq.Values {
		clause, args, next := ValueSearchClause(pq, v, q.idx)
		ors = append(ors, clause)
		q.args = append(q.args, args...)
		q.idx = next
	}
	body := exists + " AND (" + strings.Join(ors, " OR ") + ")"
	if pq.Modifier == ModifierNot {
		q.where += " AND NOT EXISTS (" + body + ")"
		return
	}
	q.where += " AND EXISTS (" + body + ")"
}

// CountSQL returns the count query SQL.
func (q *SearchQuery) CountSQL() string {
	return "SELECT COUNT(*) FROM indexed_resource ir WHERE 1=1" + q.where
}

// CountArgs returns the arguments for the count query.
func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the id query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SearchQuery) DataSQL() string {
	sql := "SELECT ir.resource_id FROM indexed_resource ir WHERE 1=1" + q.where + " ORDER BY ir.resource_id"
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// ---------------------------------------------------------------------------
// Per-type value clauses
// ---------------------------------------------------------------------------

// ValueSearchClause returns the clause matching one search_param row against
// one query value. The semantics mirror ParamQuery.MatchParams.
func ValueSearchClause(pq ParamQuery, v QueryValue, argIdx int) (string, []interface{}, int) {
	switch pq.Type {
	case SearchParamToken:
		return TokenSearchClause(colTokenSystem, colTokenCode, v, argIdx)
	case SearchParamString:
		return StringSearchClause(colString, v.Text, pq.Modifier, argIdx)
	case SearchParamURI:
		if pq.Modifier == ModifierBelow {
			return fmt.Sprintf("%s LIKE $%d", colURI, argIdx), []interface{}{escapeLike(v.Text) + "%"}, argIdx + 1
		}
		return fmt.Sprintf("%s = $%d", colURI, argIdx), []interface{}{v.Text}, argIdx + 1
	case SearchParamDate:
		return DateSearchClause(colDateStart, colDateEnd, v, argIdx)
	case SearchParamNumber:
		return NumberSearchClause(colNumber, v, argIdx)
	case SearchParamQuantity:
		clause, args, next := NumberSearchClause(colQtyValue, v, argIdx)
		if v.UnitSys != "" {
			clause += fmt.Sprintf(" AND %s = $%d", colQtySystem, next)
			args = append(args, v.UnitSys)
			next++
		}
		if v.Unit != "" {
			clause += fmt.Sprintf(" AND lower(%s) = lower($%d)", colQtyUnit, next)
			args = append(args, v.Unit)
			next++
		}
		return "(" + clause + ")", args, next
	case SearchParamReference:
		return ReferenceSearchClause(v.Ref, pq.TargetType, argIdx)
	}
	return "1=0", nil, argIdx
}

// TokenSearchClause handles token values in the format "system|code", "|code", "system|", or just "code".
func TokenSearchClause(systemCol, codeCol string, v QueryValue, argIdx int) (string, []interface{}, int) {
	if !v.HasSystem {
		return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{v.Code}, argIdx + 1
	}
	if v.Code == "" {
		return fmt.Sprintf("%s = $%d", systemCol, argIdx), []interface{}{v.System}, argIdx + 1
	}
	clause := fmt.Sprintf("(%s = $%d AND %s = $%d)", systemCol, argIdx, codeCol, argIdx+1)
	return clause, []interface{}{v.System, v.Code}, argIdx + 2
}

// StringSearchClause handles string values with modifier support. Stored
// values are already normalized.
func StringSearchClause(column string, value string, modifier SearchModifier, argIdx int) (string, []interface{}, int) {
	switch modifier {
	case ModifierExact:
		return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{value}, argIdx + 1
	case ModifierContains:
		return fmt.Sprintf("%s LIKE $%d", column, argIdx), []interface{}{"%" + escapeLike(value) + "%"}, argIdx + 1
	default:
		// Default string search: prefix match
		return fmt.Sprintf("%s LIKE $%d", column, argIdx), []interface{}{escapeLike(value) + "%"}, argIdx + 1
	}
}

// DateSearchClause compares a stored [start, end] range with the query range
// according to the prefix.
func DateSearchClause(startCol, endCol string, v QueryValue, argIdx int) (string, []interface{}, int) {
	one := func(format string, t time.Time) (string, []interface{}, int) {
		return fmt.Sprintf(format, argIdx), []interface{}{t}, argIdx + 1
	}
	two := func(format string, a, b time.Time) (string, []interface{}, int) {
		return fmt.Sprintf(format, argIdx, argIdx+1), []interface{}{a, b}, argIdx + 2
	}

	switch v.Prefix {
	case PrefixNe:
		return two("NOT ("+startCol+" >= $%d AND "+endCol+" <= $%d)", v.Start, v.End)
	case PrefixGt:
		return one(endCol+" > $%d", v.End)
	case PrefixLt:
		return one(startCol+" < $%d", v.Start)
	case PrefixGe:
		return one(endCol+" >= $%d", v.Start)
	case PrefixLe:
		return one(startCol+" <= $%d", v.End)
	case PrefixSa:
		return one(startCol+" > $%d", v.End)
	case PrefixEb:
		return one(endCol+" < $%d", v.Start)
	case PrefixAp:
		day := 24 * time.Hour
		return two("("+endCol+" >= $%d AND "+startCol+" <= $%d)", v.Start.Add(-day), v.End.Add(day))
	default: // eq
		return two("("+startCol+" >= $%d AND "+endCol+" <= $%d)", v.Start, v.End)
	}
}

// NumberSearchClause handles number and quantity values with prefix support.
// eq and ne use the precision implied by the query value.
func NumberSearchClause(column string, v QueryValue, argIdx int) (string, []interface{}, int) {
	switch v.Prefix {
	case PrefixGt, PrefixSa:
		return fmt.Sprintf("%s > $%d", column, argIdx), []interface{}{v.Number}, argIdx + 1
	case PrefixLt, PrefixEb:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{v.Number}, argIdx + 1
	case PrefixGe:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{v.Number}, argIdx + 1
	case PrefixLe:
		return fmt.Sprintf("%s <= $%d", column, argIdx), []interface{}{v.Number}, argIdx + 1
	case PrefixNe:
		clause := fmt.Sprintf("NOT (%s > $%d AND %s < $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{v.Number - v.Tolerance, v.Number + v.Tolerance}, argIdx + 2
	case PrefixAp:
		margin := v.Number * 0.1
		if margin < 0 {
			margin = -margin
		}
		clause := fmt.Sprintf("(%s >= $%d AND %s <= $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{v.Number - margin, v.Number + margin}, argIdx + 2
	default:
		clause := fmt.Sprintf("(%s > $%d AND %s < $%d)", column, argIdx, column, argIdx+1)
		return clause, []interface{}{v.Number - v.Tolerance, v.Number + v.Tolerance}, argIdx + 2
	}
}

// ReferenceSearchClause matches a reference in either addressing scheme.
// A typed query compares canonical forms when the stored type is known and
// falls back to the id when it is not.
func ReferenceSearchClause(ref NormalizedRef, targetType string, argIdx int) (string, []interface{}, int) {
	var clause string
	var args []interface{}
	if ref.TypeHint != "" {
		clause = fmt.Sprintf("(%s = $%d OR (%s = '' AND %s = $%d))", colRefCanonical, argIdx, colRefCanonical, colRefID, argIdx+1)
		args = []interface{}{ref.Canonical(), ref.ID}
	} else {
		clause = fmt.Sprintf("%s = $%d", colRefID, argIdx)
		args = []interface{}{ref.ID}
	}
	next := argIdx + len(args)
	if targetType != "" {
		clause = fmt.Sprintf("(%s AND (%s = '' OR split_part(%s, '/', 1) = $%d))", clause, colRefCanonical, colRefCanonical, next)
		args = append(args, targetType)
		next++
	}
	return clause, args, next
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
