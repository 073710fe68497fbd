package config

import (
	"context"
	"strings"

	"github.com/mktfun/gps-rh-13-sub002/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BrokerGuardPlugin enforces broker isolation by automatically scoping
// queries/updates/deletes to the request's broker_id when the model has a
// broker_id column. This makes the ownership invariant hold at the
// repository boundary regardless of which caller built the query.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include broker_id manually.
// - Admin/internal bypass is explicit via context flags.
type BrokerGuardPlugin struct{}

func NewBrokerGuardPlugin() *BrokerGuardPlugin { return &BrokerGuardPlugin{} }

func (p *BrokerGuardPlugin) Name() string { return "broker_guard" }

func (p *BrokerGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("broker_guard:query", brokerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("broker_guard:row", brokerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("broker_guard:update", brokerGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("broker_guard:delete", brokerGuardCallback); err != nil {
		return err
	}
	return nil
}

func brokerGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassBrokerScope(ctx) {
		return
	}
	brokerID := brokerIdFromContext(ctx)
	if brokerID == "" {
		return
	}

	// Only apply if the current model/table includes a broker_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasBrokerID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "broker_id") {
			hasBrokerID = true
			break
		}
	}
	if !hasBrokerID {
		return
	}

	// Don't duplicate an explicit broker filter.
	if whereHasBrokerID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "broker_id"},
				Value:  brokerID,
			},
		},
	})
}

func brokerIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyBrokerId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassBrokerScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipBrokerScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasBrokerID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBrokerID(e) {
			return true
		}
	}
	return false
}

func exprHasBrokerID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBrokerID(v.Column)
	case clause.Neq:
		return colIsBrokerID(v.Column)
	case clause.IN:
		return colIsBrokerID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBrokerID(x) {
				return true
			}
		}
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasBrokerID(x) {
				return true
			}
		}
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), "broker_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "broker_id")
	}
	return false
}

func colIsBrokerID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "broker_id") || strings.HasSuffix(strings.ToLower(c), ".broker_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "broker_id")
	}
	return false
}
