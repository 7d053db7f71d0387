// Package tally holds the shared vocabulary of the Tally ledger: block and
// tip records, the capability interfaces the node layers exchange, and the
// network configuration the auxiliary console derives from its static
// topology.
//
// The aux console itself lives in cmd/tallyaux; orchestration of the node
// layers is in package aux.
package tally
