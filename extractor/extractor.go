// Package extractor parses crash submissions into crash reports.
//
// A submission is a multipart/form-data POST body, optionally gzipped,
// mixing text annotation fields, an optional JSON "extra" field, and
// binary minidump attachments. The extractor materializes the whole
// body in memory; the per-part cap bounds what a single part can cost.
package extractor

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/pithecene-io/fissure/iox"
	"github.com/pithecene-io/fissure/types"
)

// MaxPartBytes is the buffer ceiling for a single multipart part.
const MaxPartBytes = 20 << 20

// Extract parses an HTTP crash submission into a CrashReport.
//
// Failures are returned as *MalformedError carrying the reason code;
// any other error shape is a bug. The request body is consumed.
func Extract(req *http.Request) (*types.CrashReport, error) {
	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		return nil, malformed(ReasonNoContentType)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, malformed(ReasonWrongContentType)
	}
	if mediaType != "multipart/form-data" && mediaType != "multipart/mixed" {
		return nil, malformed(ReasonWrongContentType)
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, malformed(ReasonNoBoundary)
	}

	if req.ContentLength <= 0 {
		return nil, malformed(ReasonNoContentLength)
	}

	report := types.NewCrashReport()

	var body io.Reader = req.Body
	if req.Header.Get("Content-Encoding") == "gzip" {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, malformed(ReasonBadGzip)
		}
		report.PayloadSize = len(raw)
		report.PayloadCompressed = true
		decompressed, err := gunzip(raw)
		if err != nil {
			return report, malformed(ReasonBadGzip)
		}
		body = bytes.NewReader(decompressed)
	} else {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, malformed(ReasonInvalidPayloadStructure)
		}
		report.PayloadSize = len(raw)
		body = bytes.NewReader(raw)
	}

	hasJSON := false
	hasKVPairs := false

	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, malformed(ReasonInvalidPayloadStructure)
		}

		name := part.FormName()
		if name == "" {
			continue
		}
		// Resubmitted crashes carry the checksums the first collector
		// computed. Drop them; fresh ones are computed downstream.
		if name == "dump_checksums" {
			continue
		}

		value, err := readPart(part)
		if err != nil {
			return report, err
		}

		partType := partMediaType(part)
		switch {
		case partType == "application/json":
			var decoded any
			if err := json.Unmarshal(value, &decoded); err != nil {
				return report, malformed(ReasonInvalidJSON)
			}
			object, ok := decoded.(map[string]any)
			if !ok {
				return report, malformed(ReasonInvalidJSONValue)
			}
			annotations := make(map[string]string, len(object))
			for key, val := range object {
				text, ok := val.(string)
				if !ok {
					return report, malformed(ReasonInvalidJSONValue)
				}
				annotations[key] = text
			}
			report.Annotations = annotations
			hasJSON = true

		case partType == "text/plain" && part.FileName() == "":
			if !utf8.Valid(value) {
				return report, malformed(ReasonInvalidAnnotationValue)
			}
			report.Annotations[name] = string(value)
			hasKVPairs = true

		default:
			dumpName := types.SanitizeDumpName(name)
			report.Dumps[dumpName] = value
			if partType != "application/octet-stream" {
				report.AddNote(fmt.Sprintf(
					"Part %q has unknown content type %q.", name, partType))
			}
		}
	}

	if len(report.Annotations) == 0 {
		return report, malformed(ReasonNoAnnotations)
	}
	if hasJSON && hasKVPairs {
		return report, malformed(ReasonHasJSONAndKV)
	}

	if hasJSON {
		report.PayloadKind = types.PayloadJSON
	} else {
		report.PayloadKind = types.PayloadMultipart
	}
	return report, nil
}

// gunzip decompresses a whole gzip stream held in memory.
func gunzip(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(zr)
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readPart reads a part body up to the per-part cap.
func readPart(part *multipart.Part) ([]byte, error) {
	value, err := io.ReadAll(io.LimitReader(part, MaxPartBytes+1))
	if err != nil {
		return nil, malformed(ReasonInvalidPayloadStructure)
	}
	if len(value) > MaxPartBytes {
		return nil, malformed(ReasonInvalidPayloadStructure)
	}
	return value, nil
}

// partMediaType returns the part's media type without parameters,
// lower-cased. Empty when the part carries no Content-Type header.
func partMediaType(part *multipart.Part) string {
	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
