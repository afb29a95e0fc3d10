// Package core reconciles batches of record mutations pushed by store
// terminals into the authoritative store.
//
// # Entities
//
// Entities are registered at init time using [Register]. Each
// [EntityDefinition] declares the field allow-list, the identity keys
// (primary key first, then alternate unique combinations), the modification
// timestamp field and the failure mode:
//
//	core.Register(core.EntityDefinition{
//	    Info:         core.EntityInfo{Key: "gastos", Group: "caja", Label: "Gastos"},
//	    Fields:       []core.FieldSpec{{Name: "id_ga"}, {Name: "costo", Required: true}, {Name: "utime"}},
//	    IdentityKeys: []core.IdentityKey{{"id_ga"}},
//	})
//
// # Reconciliation
//
// A batch flows Service -> Coordinator -> Processor -> Store:
//
//  1. [Service.Sync] admits the batch through the [BatchLimiter]
//  2. [Coordinator.Run] splits it into chunks of [DefaultChunkSize] records,
//     each applied in its own transaction
//  3. Every record gets a checkpoint; [Processor.Apply] looks the row up by
//     its resolved identity and creates, updates or skips it
//  4. Results are merged in input order into a [BatchReport] and applied
//     records are handed to the [Notifier]
//
// # Conflict Policy
//
// Last writer wins on the canonical timestamp string (see
// [CanonicalTimestamp]). Comparison is lexicographic and never converts
// between time zones; equal timestamps keep the stored row.
//
// # Error Handling
//
// Store failures are classified into [ErrorKind] values. Foreign key
// violations are skipped, uniqueness races are retried once as a lookup,
// validation errors fail the record (and the chunk for [Strict] entities),
// connection and unknown errors abort the chunk. [MapError] turns any of
// them into a coded message for operators.
package core
