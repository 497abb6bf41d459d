package option

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"upkeep/pkg/db/pagination"
)

// QueryOption mutates a gorm query before it is executed by the repository.
type QueryOption func(tx *gorm.DB) *gorm.DB

type Operator string

const (
	EQ      Operator = "="
	GT      Operator = ">"
	GTE     Operator = ">="
	LT      Operator = "<"
	LTE     Operator = "<="
	IN      Operator = "IN"
	IsNull  Operator = "IS NULL"
	NotNull Operator = "IS NOT NULL"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a comparison condition beyond the query-by-example filter.
func ApplyOperator(cond Condition) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		switch cond.Operator {
		case IsNull, NotNull:
			return tx.Where(fmt.Sprintf("%s %s", cond.Field, cond.Operator))
		case IN:
			return tx.Where(fmt.Sprintf("%s IN ?", cond.Field), cond.Value)
		default:
			return tx.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
		}
	}
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithSortBy orders the result set. Columns must be whitelisted through Allow.
func WithSortBy(sort QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if sort.SortBy == "" || !sort.Allow[sort.SortBy] {
			return tx
		}
		order := "ASC"
		if sort.OrderBy == "desc" || sort.OrderBy == "DESC" {
			order = "DESC"
		}
		return tx.Order(fmt.Sprintf("%s %s", sort.SortBy, order))
	}
}

// WithLimit caps the number of rows returned.
func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}

// ApplyPagination applies cursor pagination bounds to the query.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}
		if p.Cursor != "" {
			if cursor, err := pagination.DecodeCursor(p.Cursor); err == nil && cursor.CreatedAt != "" {
				tx = tx.Where("created_at < ?", cursor.CreatedAt)
			}
		}
		return tx.Order("created_at DESC").Limit(limit)
	}
}

// LockingUpdate is a gorm scope enabling SELECT ... FOR UPDATE inside a transaction.
func LockingUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// WithLockingUpdate locks the selected rows for the duration of the transaction.
func WithLockingUpdate() QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return LockingUpdate(tx)
	}
}
