// Package core implements the validation workflow engine: gatekeeper
// operations, the traceability matrix builder, the summary aggregator, and
// the rules guarding every transaction.
package core

import "vmscore/pkg/domain"

type (
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore is an alias of domain.PersistentStore.
	PersistentStore = domain.PersistentStore
	// RulesEngine is an alias of domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Actor is an alias of domain.Actor.
	Actor = domain.Actor
)
