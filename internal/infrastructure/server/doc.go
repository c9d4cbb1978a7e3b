// Package server wires the session registry, tool registry and automation
// provider behind a gin router and owns their shutdown order.
package server
