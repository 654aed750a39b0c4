// Package types defines the leaf value types shared across the collector.
//
// A crash report is a bundle of annotations (text key/value pairs) and
// dumps (named opaque byte blobs) uploaded by a breakpad client. The
// report lives entirely in memory between extraction and the durable
// store write.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// PayloadKind records how annotations arrived in the submission.
type PayloadKind string

// Payload kind constants.
const (
	// PayloadMultipart means annotations arrived as multipart form fields.
	PayloadMultipart PayloadKind = "multipart"
	// PayloadJSON means annotations arrived as a single JSON-encoded
	// field named "extra".
	PayloadJSON PayloadKind = "json"
)

// ForbiddenAnnotations are annotation keys stripped before storage.
// Each strip appends a collector note to the report.
var ForbiddenAnnotations = []string{
	"Email",
	"TelemetryClientId",
	"TelemetryServerURL",
	"TelemetrySessionId",
}

// CrashReport is a single crash submission in memory.
//
// Single-owner value: created by the extractor, mutated by the ingestion
// handler, consumed by the crash mover, and dropped after the terminal
// handoff. No synchronization is needed.
type CrashReport struct {
	// Annotations maps annotation key to text value.
	Annotations map[string]string
	// Dumps maps sanitized dump name to the raw dump bytes.
	Dumps map[string][]byte
	// PayloadKind records whether annotations arrived as multipart
	// form fields or as a JSON-encoded "extra" field.
	PayloadKind PayloadKind
	// PayloadCompressed is true when the submission body was gzipped.
	PayloadCompressed bool
	// PayloadSize is the submission body size in bytes, before any
	// decompression.
	PayloadSize int
	// Notes are diagnostic notes accumulated during extraction and
	// cleanup, stored with the raw crash as collector_notes.
	Notes []string
	// DumpChecksums maps sanitized dump name to the SHA-256 hex digest
	// of the dump bytes.
	DumpChecksums map[string]string
	// CrashID is the externally visible identifier, set after minting.
	CrashID string
	// ReceivedAt is the submission wall time recorded when the HTTP
	// request arrived.
	ReceivedAt time.Time
}

// NewCrashReport creates an empty crash report.
func NewCrashReport() *CrashReport {
	return &CrashReport{
		Annotations: map[string]string{},
		Dumps:       map[string][]byte{},
		PayloadKind: PayloadMultipart,
	}
}

// AddNote appends a diagnostic note to the report.
func (r *CrashReport) AddNote(note string) {
	r.Notes = append(r.Notes, note)
}

// StripForbiddenAnnotations removes annotation keys that must never be
// stored. Each removed key appends a collector note naming the field.
func (r *CrashReport) StripForbiddenAnnotations() {
	for _, key := range ForbiddenAnnotations {
		if _, ok := r.Annotations[key]; ok {
			delete(r.Annotations, key)
			r.AddNote(fmt.Sprintf("Removed %s from raw crash.", key))
		}
	}
}

// PayloadCompressedValue returns the serialized form of the compressed
// flag: "1" when the body was gzipped, "0" otherwise.
func (r *CrashReport) PayloadCompressedValue() string {
	if r.PayloadCompressed {
		return "1"
	}
	return "0"
}

// ComputeDumpChecksums fills DumpChecksums with the SHA-256 hex digest
// of every dump.
func (r *CrashReport) ComputeDumpChecksums() {
	r.DumpChecksums = make(map[string]string, len(r.Dumps))
	for name, body := range r.Dumps {
		digest := sha256.Sum256(body)
		r.DumpChecksums[name] = hex.EncodeToString(digest[:])
	}
}

// RawCrash builds the raw-crash document stored alongside the dumps:
// the annotations at the top level plus the collector metadata block
// and the document version.
func (r *CrashReport) RawCrash() map[string]any {
	doc := make(map[string]any, len(r.Annotations)+2)
	for key, value := range r.Annotations {
		doc[key] = value
	}

	notes := r.Notes
	if notes == nil {
		notes = []string{}
	}
	checksums := r.DumpChecksums
	if checksums == nil {
		checksums = map[string]string{}
	}

	doc["version"] = RawCrashVersion
	doc["metadata"] = map[string]any{
		"payload":            string(r.PayloadKind),
		"payload_compressed": r.PayloadCompressedValue(),
		"collector_notes":    notes,
		"dump_checksums":     checksums,
	}
	return doc
}
