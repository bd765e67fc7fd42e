package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
}

func (b *InsertBuilder) OnConflict(columns ...string) *UpdateBuilder {
	ub := NewUpdateBuilder()
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(columns, ", "), b.Var(ub)))

	return ub
}

func (ib *InsertBuilder) Cols(col ...string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Cols(col...)}
}

func (ib *InsertBuilder) InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.InsertInto(table)}
}

func (ib *InsertBuilder) Returning(col ...string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Returning(col...)}
}

func (ib *InsertBuilder) Values(value ...any) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Values(value...)}
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

type Struct struct {
	*sqlbuilder.Struct
}

func (s *Struct) SelectFrom(table string) *SelectBuilder {
	return &SelectBuilder{s.Struct.SelectFrom(table)}
}

func (s *Struct) InsertInto(table string, v ...any) *InsertBuilder {
	return &InsertBuilder{s.Struct.InsertInto(table, v...)}
}

func (s *Struct) Update(table string, v any) *UpdateBuilder {
	return &UpdateBuilder{s.Struct.Update(table, v)}
}

func NewStruct(v any) *Struct {
	builder := sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)
	return &Struct{builder}
}

// Int64Args flattens ids for an IN (...) clause.
func Int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// ValuesUpdate builds a single "UPDATE .. FROM (VALUES ..)" statement that
// writes one row per tuple, matched on key. casts gives the Postgres type of
// each column so the VALUES list is typed.
//
//	UPDATE t SET a = v.a, b = v.b FROM (VALUES ($1::bigint, $2::text), ..) AS v(id, a) WHERE t.id = v.id
type ValuesUpdate struct {
	Table   string
	Key     string
	Columns []string
	Casts   []string
	// Where holds extra predicates written with %v placeholders, bound to
	// WhereArgs in order.
	Where     []string
	WhereArgs []any
	rows      [][]any
}

func (u *ValuesUpdate) Add(values ...any) {
	u.rows = append(u.rows, values)
}

func (u *ValuesUpdate) Len() int {
	return len(u.rows)
}

func (u *ValuesUpdate) Build() (string, []any) {
	cols := append([]string{u.Key}, u.Columns...)
	args := make([]any, 0, len(u.rows)*len(cols))

	tuples := make([]string, len(u.rows))
	for i, row := range u.rows {
		vars := make([]string, len(row))
		for j, v := range row {
			vars[j] = "%v::" + u.Casts[j]
			args = append(args, v)
		}
		tuples[i] = "(" + strings.Join(vars, ", ") + ")"
	}

	sets := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		sets[i] = fmt.Sprintf("%s = v.%s", c, c)
	}

	where := append([]string{fmt.Sprintf("t.%s = v.%s", u.Key, u.Key)}, u.Where...)
	args = append(args, u.WhereArgs...)

	format := fmt.Sprintf("UPDATE %s AS t SET %s FROM (VALUES %s) AS v(%s) WHERE %s",
		u.Table,
		strings.Join(sets, ", "),
		strings.Join(tuples, ", "),
		strings.Join(cols, ", "),
		strings.Join(where, " AND "),
	)

	return sqlbuilder.Buildf(format, args...).BuildWithFlavor(sqlbuilder.PostgreSQL)
}
