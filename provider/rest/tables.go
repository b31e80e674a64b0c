package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-clinic-auth"
)

// QueryTable implements auth.Provider.
func (p *Provider) QueryTable(ctx context.Context, table string, query auth.Query) ([]auth.Record, error) {
	params := url.Values{}
	if len(query.Columns) > 0 {
		params.Set("select", strings.Join(query.Columns, ","))
	} else {
		params.Set("select", "*")
	}
	addFilters(params, query.Filters)

	if len(query.Order) > 0 {
		parts := make([]string, 0, len(query.Order))
		for _, o := range query.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}

	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	var rows []auth.Record
	err := p.tableCall(ctx, request{
		method: http.MethodGet,
		path:   tablePath(table),
		query:  params,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertRecord implements auth.Provider.
func (p *Provider) InsertRecord(ctx context.Context, table string, record auth.Record) (auth.Record, error) {
	var rows []auth.Record
	err := p.tableCall(ctx, request{
		method: http.MethodPost,
		path:   tablePath(table),
		body:   record,
		prefer: "return=representation",
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return record, nil
	}
	return rows[0], nil
}

// UpdateRecords implements auth.Provider.
func (p *Provider) UpdateRecords(ctx context.Context, table string, filters []auth.Filter, values auth.Record) error {
	if len(values) == 0 {
		return nil
	}

	params := url.Values{}
	addFilters(params, filters)

	return p.tableCall(ctx, request{
		method: http.MethodPatch,
		path:   tablePath(table),
		query:  params,
		body:   values,
		prefer: "return=minimal",
	}, nil)
}

// tableCall sends r with the access token of a fresh session, or the anon key
// without one. A token the table service rejects ends the session.
func (p *Provider) tableCall(ctx context.Context, r request, out any) error {
	session, ended, err := p.freshSession(ctx)
	if err != nil {
		return err
	}
	if ended {
		return sessionExpired(opRest, nil)
	}
	if session != nil {
		r.token = session.AccessToken
	}

	err = p.do(ctx, opRest, r, out)
	if err == nil || session == nil {
		return err
	}

	perr, ok := asProviderError(err)
	if !ok || perr.Status != http.StatusUnauthorized {
		return err
	}

	p.logger.Info("access token rejected by table service", "user_id", session.User.ID, "error", perr.Message)
	p.endSession(ctx, session)
	return sessionExpired(opRest, perr)
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

func addFilters(params url.Values, filters []auth.Filter) {
	for _, f := range filters {
		params.Add(f.Column, string(f.Op)+"."+filterValue(f.Value))
	}
}

func filterValue(v any) string {
	switch vv := v.(type) {
	case nil:
		return "null"
	case string:
		return vv
	case time.Time:
		return vv.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if vv == nil {
			return "null"
		}
		return vv.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return vv.String()
	default:
		return fmt.Sprint(vv)
	}
}
