// Package core implements the image asset synchronization engine.
//
// This package contains all domain logic independent of any transport
// layer. It reconciles a catalog entity's ordered image list against the
// external image-hosting service and exposes one method per admin
// operation. It can be driven by web handlers, CLI tools, or tests without
// modification.
//
// # Operations
//
// [Service] is the entry point. Each operation resolves current state,
// performs its effect against the CDN and/or the catalog store, and
// returns an enriched result with timing and correlation metadata:
//
//   - Resolve: read and normalize an entity's image list (no side effects)
//   - Upload: push bytes to the CDN, then append to the entity's list
//   - DeleteOrigin: delete a CDN asset without touching any catalog list
//   - Detach: remove an entry from the list (no CDN call, idempotent)
//   - MakePrimary: move an entry to index 0 and purge the old primary URL
//   - Relink: migrate an external entry into CDN-hosted form in place
//   - BulkAttach: attach existing CDN assets from tabular rows, per-row isolated
//   - Validate: probe every entry URL and classify ok/broken
//   - Purge: edge-cache invalidation for a single delivery URL
//
// # Consistency
//
// The first list entry is the primary image surfaced publicly, so ordering
// is load-bearing. Every mutator runs its read-modify-write inside the
// store's per-entity row lock; concurrent mutators on the same entity
// serialize, mutators on different entities proceed in parallel. Multi-step
// operations (Upload, Relink) only write to the catalog after the CDN call
// has succeeded, so a failed remote call leaves no partial entry.
//
// # Error Handling
//
// Operations fail with [*OpError] carrying a stable machine code
// (not_found, duplicate, upstream_unavailable, invalid_payload,
// missing_env, network_error). Driver and transport errors are mapped to
// these codes by [MapError]; callers are expected to keep operating on
// other entries and entities after a single-operation failure.
package core
