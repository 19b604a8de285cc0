// Package journal reads dated Markdown journal files.
//
// A journal directory holds one file per day, named after the day it
// describes:
//
//	journal/
//	  2025-06-01.md
//	  2025-06-02.md
//
// Each file may open with a front-matter block whose `key: value` lines carry
// numeric habit metrics:
//
//	---
//	workout: 45
//	reading: 20
//	---
//	Went for a run before work.
//
// The package provides three building blocks of the ingestion pipeline:
//
//   - Extract / ExtractFile: pull tracked metrics out of the front matter
//   - ShouldProcess / Decide: the re-parse gate, comparing a file's
//     modification time against its stored fingerprint
//   - Scan: enumerate the journal files of a directory, recording their
//     fingerprints as they are found
//
// Extraction is a pure function of the file content, its path and the set
// of tracked metric names. The date of every record comes from the file
// name, never from the content.
package journal
