package local

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type writeRule int

const (
	writeDeny writeRule = iota
	writeOwner
	writeAdmin
)

// tablePolicy mirrors the row level security of the hosted backend. Every
// exposed table requires a session. When owner is set, rows are limited to
// the ones whose owner column equals the session user id.
type tablePolicy struct {
	model  any
	owner  string
	insert writeRule
	update writeRule
}

var tablePolicies = map[string]tablePolicy{
	auth.TableTreatmentCases: {
		model:  (*auth.TreatmentCase)(nil),
		insert: writeAdmin,
		update: writeAdmin,
	},
	auth.TableAdminUsers: {
		model:  (*auth.AdminUser)(nil),
		owner:  "user_id",
		insert: writeDeny,
		update: writeDeny,
	},
	auth.TableUserProfiles: {
		model:  (*auth.UserProfile)(nil),
		owner:  "id",
		insert: writeOwner,
		update: writeOwner,
	},
}

var filterOperators = map[auth.FilterOp]string{
	auth.OpEq:  "=",
	auth.OpNeq: "<>",
	auth.OpGt:  ">",
	auth.OpGte: ">=",
	auth.OpLt:  "<",
	auth.OpLte: "<=",
}

// QueryTable implements auth.Provider.
func (p *Provider) QueryTable(ctx context.Context, table string, query auth.Query) ([]auth.Record, error) {
	policy, meta, userID, err := p.authorize(table)
	if err != nil {
		return nil, err
	}

	q := p.db.NewSelect().TableExpr("?", bun.Ident(table))

	if len(query.Columns) == 0 {
		q.ColumnExpr("*")
	}
	for _, c := range query.Columns {
		if err := checkColumn(meta, table, c); err != nil {
			return nil, err
		}
		q.ColumnExpr("?", bun.Ident(c))
	}

	if err := applyFilters(q, meta, table, query.Filters); err != nil {
		return nil, err
	}
	if policy.owner != "" {
		q.Where("? = ?", bun.Ident(policy.owner), userID)
	}

	for _, o := range query.Order {
		if err := checkColumn(meta, table, o.Column); err != nil {
			return nil, err
		}
		if o.Descending {
			q.OrderExpr("? DESC", bun.Ident(o.Column))
		} else {
			q.OrderExpr("? ASC", bun.Ident(o.Column))
		}
	}

	if query.Limit > 0 {
		q.Limit(query.Limit)
	}

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, p.wrap(opRest, err)
	}

	out := make([]auth.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalizeRow(row))
	}
	return out, nil
}

// InsertRecord implements auth.Provider.
func (p *Provider) InsertRecord(ctx context.Context, table string, record auth.Record) (auth.Record, error) {
	policy, meta, userID, err := p.authorize(table)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(record)+2)
	for k, v := range record {
		if err := checkColumn(meta, table, k); err != nil {
			return nil, err
		}
		values[k] = v
	}

	switch policy.insert {
	case writeDeny:
		return nil, permissionDenied(table)
	case writeAdmin:
		if err := p.requireAdmin(ctx, table, userID); err != nil {
			return nil, err
		}
	case writeOwner:
		if v, ok := values[policy.owner]; ok && fmt.Sprint(v) != userID {
			return nil, rowPolicyViolation(table)
		}
		values[policy.owner] = userID
	}

	now := p.now().UTC()
	if _, ok := values["id"]; !ok && meta.HasField("id") {
		values["id"] = uuid.NewString()
	}
	for _, col := range []string{"created_at", "updated_at"} {
		if _, ok := values[col]; !ok && meta.HasField(col) {
			values[col] = now
		}
	}

	if _, err := p.db.NewInsert().Model(&values).TableExpr("?", bun.Ident(table)).Exec(ctx); err != nil {
		return nil, p.wrap(opRest, err)
	}

	return auth.Record(values), nil
}

// UpdateRecords implements auth.Provider.
func (p *Provider) UpdateRecords(ctx context.Context, table string, filters []auth.Filter, values auth.Record) error {
	policy, meta, userID, err := p.authorize(table)
	if err != nil {
		return err
	}

	if len(values) == 0 {
		return nil
	}

	set := make(map[string]any, len(values)+1)
	for k, v := range values {
		if err := checkColumn(meta, table, k); err != nil {
			return err
		}
		if policy.owner != "" && k == policy.owner {
			return rowPolicyViolation(table)
		}
		set[k] = v
	}
	if _, ok := set["updated_at"]; !ok && meta.HasField("updated_at") {
		set["updated_at"] = p.now().UTC()
	}

	switch policy.update {
	case writeDeny:
		return permissionDenied(table)
	case writeAdmin:
		if err := p.requireAdmin(ctx, table, userID); err != nil {
			return err
		}
	}

	q := p.db.NewUpdate().Model(&set).TableExpr("?", bun.Ident(table))
	if err := applyFilters(q, meta, table, filters); err != nil {
		return err
	}
	if policy.owner != "" {
		q.Where("? = ?", bun.Ident(policy.owner), userID)
	}
	if len(filters) == 0 && policy.owner == "" {
		return &auth.ProviderError{
			Provider:  providerName,
			Operation: opRest,
			Status:    http.StatusBadRequest,
			Code:      "21000",
			Message:   "UPDATE requires a WHERE clause",
		}
	}

	if _, err := q.Exec(ctx); err != nil {
		return p.wrap(opRest, err)
	}
	return nil
}

// authorize resolves the policy for table and the session user id.
func (p *Provider) authorize(table string) (tablePolicy, *schema.Table, string, error) {
	policy, ok := tablePolicies[table]
	if !ok {
		return tablePolicy{}, nil, "", &auth.ProviderError{
			Provider:  providerName,
			Operation: opRest,
			Status:    http.StatusNotFound,
			Code:      "42P01",
			Message:   fmt.Sprintf("relation \"public.%s\" does not exist", table),
		}
	}

	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()

	if session == nil || session.Expired(p.now()) {
		return tablePolicy{}, nil, "", permissionDenied(table)
	}

	meta := p.db.Table(reflect.TypeOf(policy.model).Elem())
	return policy, meta, session.User.ID, nil
}

func (p *Provider) requireAdmin(ctx context.Context, table, userID string) error {
	ok, err := p.IsAdmin(ctx, userID)
	if err != nil {
		return p.wrap(opRest, err)
	}
	if !ok {
		return rowPolicyViolation(table)
	}
	return nil
}

func applyFilters(q any, meta *schema.Table, table string, filters []auth.Filter) error {
	for _, f := range filters {
		if err := checkColumn(meta, table, f.Column); err != nil {
			return err
		}

		op, ok := filterOperators[f.Op]
		if !ok {
			return &auth.ProviderError{
				Provider:  providerName,
				Operation: opRest,
				Status:    http.StatusBadRequest,
				Code:      "PGRST100",
				Message:   fmt.Sprintf("unknown operator %q", f.Op),
			}
		}

		expr := "? " + op + " ?"
		switch qq := q.(type) {
		case *bun.SelectQuery:
			qq.Where(expr, bun.Ident(f.Column), f.Value)
		case *bun.UpdateQuery:
			qq.Where(expr, bun.Ident(f.Column), f.Value)
		}
	}
	return nil
}

func checkColumn(meta *schema.Table, table, column string) error {
	if meta != nil && meta.HasField(column) {
		return nil
	}
	return &auth.ProviderError{
		Provider:  providerName,
		Operation: opRest,
		Status:    http.StatusBadRequest,
		Code:      "42703",
		Message:   fmt.Sprintf("column %s.%s does not exist", table, column),
	}
}

func permissionDenied(table string) error {
	return &auth.ProviderError{
		Provider:  providerName,
		Operation: opRest,
		Status:    http.StatusUnauthorized,
		Code:      codeDenied,
		Message:   fmt.Sprintf("permission denied for table %s", table),
	}
}

func rowPolicyViolation(table string) error {
	return &auth.ProviderError{
		Provider:  providerName,
		Operation: opRest,
		Status:    http.StatusForbidden,
		Code:      codeDenied,
		Message:   fmt.Sprintf("new row violates row-level security policy for table \"%s\"", table),
	}
}

func normalizeRow(row map[string]any) auth.Record {
	out := make(auth.Record, len(row))
	for k, v := range row {
		switch vv := v.(type) {
		case []byte:
			out[k] = string(vv)
		case time.Time:
			out[k] = vv.UTC()
		default:
			out[k] = v
		}
	}
	return out
}
