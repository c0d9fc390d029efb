// Package core provides the product operations: upload, list, export,
// stats and dashboard.
//
// It holds the domain flow independent of any transport. Web handlers, CLI
// tools and tests all drive the same [Service].
//
// # Upload
//
// An upload is a batch of files processed synchronously:
//
//  1. [Service.Upload] takes a slot from the [UploadLimiter]
//  2. Each file is parsed by the tabular reader while its bytes are hashed
//     (xxhash64) and optionally copied to the upload directory
//  3. Rows go through the product normalizer; rows missing a required
//     field are dropped and only counted
//  4. Admitted rows are upserted one by one by SKU
//
// Unreadable files are skipped and reported per file. A store error ends
// the batch. There is no batch transaction, so rows written before the
// failure remain.
//
// # Reports
//
// [Service.Stats] and [Service.Dashboard] load a snapshot of every record
// and hand it to the report package. Nothing is cached.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError].
// Each category has a support code:
//
//   - FILE001-FILE007: File errors (size, format, sheet, workbook)
//   - DB001-DB007: Database errors (constraints, schema, connections)
//   - EXP001: Export errors
//   - UPL001-UPL005: Upload errors (no readable file, busy, cancelled, timeout)
package core
