// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package callstore is the source-of-truth abstraction over call and
// queue rows (spec §4.4), backed by GORM with the same predicate-composition
// query-builder shape as internal_callcontext.Store.
package callstore

import "gorm.io/gorm"

// Predicate is a composable conjunction of equality, set-membership, and
// comparison clauses (spec §4.4), applied as a GORM scope.
type Predicate func(*gorm.DB) *gorm.DB

// Eq constrains column = value.
func Eq(column string, value interface{}) Predicate {
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" = ?", value) }
}

// In constrains column IN (values...).
func In(column string, values interface{}) Predicate {
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" IN ?", values) }
}

// LessOrEqual constrains column <= value.
func LessOrEqual(column string, value interface{}) Predicate {
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" <= ?", value) }
}

// GreaterOrEqual constrains column >= value.
func GreaterOrEqual(column string, value interface{}) Predicate {
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" >= ?", value) }
}

// Raw constrains by a literal SQL fragment with no bound parameters, for
// comparisons between two columns (e.g. "attempts < max_attempts") that
// Eq/In/LessOrEqual/GreaterOrEqual cannot express.
func Raw(fragment string) Predicate {
	return func(db *gorm.DB) *gorm.DB { return db.Where(fragment) }
}

// And composes predicates as a single conjunction.
func And(preds ...Predicate) Predicate {
	return func(db *gorm.DB) *gorm.DB {
		for _, p := range preds {
			if p != nil {
				db = p(db)
			}
		}
		return db
	}
}

func apply(db *gorm.DB, preds ...Predicate) *gorm.DB {
	return And(preds...)(db)
}
