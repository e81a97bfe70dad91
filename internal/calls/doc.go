// Package calls persists Call and Analysis records in SQLite.
//
// A Call is created when a recording is uploaded and moves through
// pending, processing, and then completed or failed. Terminal statuses are
// final. An Analysis is inserted exactly once, in the same transaction that
// completes its Call, and is never updated.
//
// The schema is embedded and versioned through a schema_version table; a
// database written by a different schema version is refused rather than
// migrated.
package calls
