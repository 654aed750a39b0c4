package extractor

// Reason codes for malformed crash submissions. These flow into the
// client-facing "Discarded=malformed_<reason>" response body and into
// the malformed metric, so the strings are contract.
const (
	ReasonNoContentType           = "no_content_type"
	ReasonWrongContentType        = "wrong_content_type"
	ReasonNoBoundary              = "no_boundary"
	ReasonNoContentLength         = "no_content_length"
	ReasonBadGzip                 = "bad_gzip"
	ReasonInvalidJSON             = "invalid_json"
	ReasonInvalidJSONValue        = "invalid_json_value"
	ReasonInvalidAnnotationValue  = "invalid_annotation_value"
	ReasonInvalidPayloadStructure = "invalid_payload_structure"
	ReasonNoAnnotations           = "no_annotations"
	ReasonHasJSONAndKV            = "has_json_and_kv"
)

// MalformedError reports a crash submission that could not be parsed.
// Reason is one of the Reason constants above.
type MalformedError struct {
	Reason string
}

// Error implements error.
func (e *MalformedError) Error() string {
	return "malformed crash report: " + e.Reason
}

// malformed is shorthand for constructing a MalformedError.
func malformed(reason string) *MalformedError {
	return &MalformedError{Reason: reason}
}
