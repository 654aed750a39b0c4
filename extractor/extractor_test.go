package extractor

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/pithecene-io/fissure/types"
)

type testPart struct {
	name        string
	filename    string
	contentType string
	body        []byte
}

// buildBody assembles a multipart body from parts and returns the body
// bytes and the Content-Type header value.
func buildBody(t *testing.T, parts []testPart) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range parts {
		header := textproto.MIMEHeader{}
		disposition := fmt.Sprintf(`form-data; name=%q`, p.name)
		if p.filename != "" {
			disposition += fmt.Sprintf(`; filename=%q`, p.filename)
		}
		header.Set("Content-Disposition", disposition)
		if p.contentType != "" {
			header.Set("Content-Type", p.contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := part.Write(p.body); err != nil {
			t.Fatalf("part write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close: %v", err)
	}
	return buf.Bytes(), writer.FormDataContentType()
}

func newRequest(body []byte, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req
}

// wantReason asserts err is a MalformedError with the given reason.
func wantReason(t *testing.T, err error, reason string) {
	t.Helper()
	var malformedErr *MalformedError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("err = %v, want MalformedError", err)
	}
	if malformedErr.Reason != reason {
		t.Errorf("reason = %q, want %q", malformedErr.Reason, reason)
	}
}

func TestExtract_KVPairs(t *testing.T) {
	body, contentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
		{name: "Version", contentType: "text/plain", body: []byte("140.0")},
		{name: "upload_file_minidump", filename: "dump",
			contentType: "application/octet-stream", body: []byte("MDMP\x00\x01")},
	})

	report, err := Extract(newRequest(body, contentType))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := report.Annotations["ProductName"]; got != "Firefox" {
		t.Errorf("ProductName = %q, want %q", got, "Firefox")
	}
	if got := report.Annotations["Version"]; got != "140.0" {
		t.Errorf("Version = %q, want %q", got, "140.0")
	}
	if got := report.Dumps["upload_file_minidump"]; !bytes.Equal(got, []byte("MDMP\x00\x01")) {
		t.Errorf("dump = %q, want %q", got, "MDMP\x00\x01")
	}
	if report.PayloadKind != types.PayloadMultipart {
		t.Errorf("PayloadKind = %q, want %q", report.PayloadKind, types.PayloadMultipart)
	}
	if report.PayloadCompressed {
		t.Error("PayloadCompressed = true, want false")
	}
	if report.PayloadSize != len(body) {
		t.Errorf("PayloadSize = %d, want %d", report.PayloadSize, len(body))
	}
}

func TestExtract_KVPairsWithoutContentType(t *testing.T) {
	// Fields without a Content-Type header and without a filename are
	// not annotations; they land in the dumps map.
	body, contentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
		{name: "memory_report", body: []byte("blob")},
	})

	report, err := Extract(newRequest(body, contentType))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := report.Dumps["memory_report"]; !bytes.Equal(got, []byte("blob")) {
		t.Errorf("dump = %q, want %q", got, "blob")
	}
}

func TestExtract_JSONPayload(t *testing.T) {
	extra := []byte(`{"ProductName": "Firefox", "Version": "140.0"}`)
	body, contentType := buildBody(t, []testPart{
		{name: "extra", contentType: "application/json", body: extra},
		{name: "upload_file_minidump", filename: "dump",
			contentType: "application/octet-stream", body: []byte("MDMP")},
	})

	report, err := Extract(newRequest(body, contentType))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if report.PayloadKind != types.PayloadJSON {
		t.Errorf("PayloadKind = %q, want %q", report.PayloadKind, types.PayloadJSON)
	}
	if got := report.Annotations["ProductName"]; got != "Firefox" {
		t.Errorf("ProductName = %q, want %q", got, "Firefox")
	}
	if len(report.Annotations) != 2 {
		t.Errorf("len(Annotations) = %d, want 2", len(report.Annotations))
	}
}

func TestExtract_Gzip(t *testing.T) {
	body, contentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
	})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	req := newRequest(buf.Bytes(), contentType)
	req.Header.Set("Content-Encoding", "gzip")

	report, err := Extract(req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !report.PayloadCompressed {
		t.Error("PayloadCompressed = false, want true")
	}
	if got := report.Annotations["ProductName"]; got != "Firefox" {
		t.Errorf("ProductName = %q, want %q", got, "Firefox")
	}
	if report.PayloadSize != buf.Len() {
		t.Errorf("PayloadSize = %d, want %d", report.PayloadSize, buf.Len())
	}
}

func TestExtract_Malformed(t *testing.T) {
	goodBody, goodContentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
	})

	tests := []struct {
		name       string
		request    func(t *testing.T) *http.Request
		wantReason string
	}{
		{
			name: "no content type",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/submit",
					bytes.NewReader(goodBody))
			},
			wantReason: ReasonNoContentType,
		},
		{
			name: "wrong content type",
			request: func(t *testing.T) *http.Request {
				return newRequest(goodBody, "application/json")
			},
			wantReason: ReasonWrongContentType,
		},
		{
			name: "no boundary",
			request: func(t *testing.T) *http.Request {
				return newRequest(goodBody, "multipart/form-data")
			},
			wantReason: ReasonNoBoundary,
		},
		{
			name: "no content length",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/submit", http.NoBody)
				req.Header.Set("Content-Type", goodContentType)
				return req
			},
			wantReason: ReasonNoContentLength,
		},
		{
			name: "bad gzip",
			request: func(t *testing.T) *http.Request {
				req := newRequest(goodBody, goodContentType)
				req.Header.Set("Content-Encoding", "gzip")
				return req
			},
			wantReason: ReasonBadGzip,
		},
		{
			name: "invalid json",
			request: func(t *testing.T) *http.Request {
				body, contentType := buildBody(t, []testPart{
					{name: "extra", contentType: "application/json",
						body: []byte(`{"ProductName":`)},
				})
				return newRequest(body, contentType)
			},
			wantReason: ReasonInvalidJSON,
		},
		{
			name: "json value not an object",
			request: func(t *testing.T) *http.Request {
				body, contentType := buildBody(t, []testPart{
					{name: "extra", contentType: "application/json",
						body: []byte(`["ProductName"]`)},
				})
				return newRequest(body, contentType)
			},
			wantReason: ReasonInvalidJSONValue,
		},
		{
			name: "json value not all strings",
			request: func(t *testing.T) *http.Request {
				body, contentType := buildBody(t, []testPart{
					{name: "extra", contentType: "application/json",
						body: []byte(`{"ProductName": "Firefox", "Count": 3}`)},
				})
				return newRequest(body, contentType)
			},
			wantReason: ReasonInvalidJSONValue,
		},
		{
			name: "invalid annotation value",
			request: func(t *testing.T) *http.Request {
				body, contentType := buildBody(t, []testPart{
					{name: "ProductName", contentType: "text/plain",
						body: []byte{0xff, 0xfe, 0xfd}},
				})
				return newRequest(body, contentType)
			},
			wantReason: ReasonInvalidAnnotationValue,
		},
		{
			name: "truncated multipart",
			request: func(t *testing.T) *http.Request {
				return newRequest(goodBody[:len(goodBody)-10], goodContentType)
			},
			wantReason: ReasonInvalidPayloadStructure,
		},
		{
			name: "no annotations",
			request: func(t *testing.T) *http.Request {
				body, contentType := buildBody(t, []testPart{
					{name: "upload_file_minidump", filename: "dump",
						contentType: "application/octet-stream", body: []byte("MDMP")},
				})
				return newRequest(body, contentType)
			},
			wantReason: ReasonNoAnnotations,
		},
		{
			name: "json and kv pairs mixed",
			request: func(t *testing.T) *http.Request {
				body, contentType := buildBody(t, []testPart{
					{name: "ProductName", contentType: "text/plain",
						body: []byte("Firefox")},
					{name: "extra", contentType: "application/json",
						body: []byte(`{"Version": "140.0"}`)},
				})
				return newRequest(body, contentType)
			},
			wantReason: ReasonHasJSONAndKV,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.request(t))
			wantReason(t, err, tt.wantReason)
		})
	}
}

func TestExtract_DumpChecksumsSkipped(t *testing.T) {
	body, contentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
		{name: "dump_checksums", contentType: "text/plain",
			body: []byte(`{"upload_file_minidump": "abc123"}`)},
	})

	report, err := Extract(newRequest(body, contentType))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := report.Annotations["dump_checksums"]; ok {
		t.Error("dump_checksums annotation present, want skipped")
	}
	if _, ok := report.Dumps["dump_checksums"]; ok {
		t.Error("dump_checksums dump present, want skipped")
	}
}

func TestExtract_UnknownDumpContentType(t *testing.T) {
	body, contentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
		{name: "upload_file_minidump", filename: "dump",
			contentType: "application/x-foo", body: []byte("MDMP")},
	})

	report, err := Extract(newRequest(body, contentType))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := report.Dumps["upload_file_minidump"]; !ok {
		t.Error("dump missing")
	}
	if len(report.Notes) != 1 {
		t.Fatalf("len(Notes) = %d, want 1", len(report.Notes))
	}
}

func TestExtract_DumpNameSanitized(t *testing.T) {
	body, contentType := buildBody(t, []testPart{
		{name: "ProductName", contentType: "text/plain", body: []byte("Firefox")},
		{name: "upload_file_minidump; rm -rf", filename: "dump",
			contentType: "application/octet-stream", body: []byte("MDMP")},
	})

	report, err := Extract(newRequest(body, contentType))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := report.Dumps["upload_file_minidumprmrf"]; !ok {
		t.Errorf("dumps = %v, want key %q", dumpNames(report), "upload_file_minidumprmrf")
	}
}

func dumpNames(report *types.CrashReport) []string {
	names := make([]string, 0, len(report.Dumps))
	for name := range report.Dumps {
		names = append(names, name)
	}
	return names
}
