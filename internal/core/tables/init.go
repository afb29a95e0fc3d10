// Package tables registers the built-in store entities with the core registry.
// Import this package to ensure all entities are registered.
package tables

// This file exists to provide a single import point.
// Each entity file uses init() to register its entities.
