// Package core provides the business logic for formulation records.
//
// It holds the domain independent of any transport or storage: the web
// handlers, the stores under internal/store and the tests all use it
// without modification.
//
// # Architecture
//
//   - Field mapping: [FormulationFields] lists the header spellings seen in
//     spreadsheets for every canonical field; [HeaderIndex] resolves them
//     after [NormalizeHeader].
//   - Bulk import: [Normalizer] turns loose rows into records and per-row
//     errors. [Service.Import] removes repeated CURPs and writes the rest
//     through a [RecordStore] with the [InsertOnly] policy.
//   - Single submission: [Submission.Validate] requires every personal and
//     academic field. [Service.Submit] adds the attachment upload and the
//     confirmation notice.
//
// # Bulk Import
//
//  1. The handler decodes JSON rows or calls [ParseCSVRows] on an upload
//  2. [Normalizer.Normalize] validates every row; failures become [RowError]
//  3. Accepted records are deduplicated by CURP, first occurrence wins
//  4. Records are written in batches; stored CURPs are left untouched
//
// Re-importing the same file is therefore harmless: nothing is overwritten
// and no second record is created for a known CURP.
//
// # Error Handling
//
// Sentinel errors ([ErrDuplicateKey], [ErrStorageUnavailable],
// [ErrAttachmentUpload], [ErrEmptyBatch], [ErrNothingInserted]) are matched
// with errors.Is. [MapError] turns any of them into a Spanish [UserMessage]
// with a support code.
package core
