package intake

import "errors"

var (
	// ErrMissingKey is reported for batch entries that carry no object key.
	ErrMissingKey = errors.New("object key is missing")

	// ErrObjectNotFound means the object is not (or no longer) in the bucket.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUnsupportedDocument is returned by a TextExtractor when the document
	// encoding cannot be processed.
	ErrUnsupportedDocument = errors.New("unsupported document encoding")

	// ErrInvalidDocumentReference is returned by a TextExtractor when the
	// bucket/key reference is not usable by the extraction service.
	ErrInvalidDocumentReference = errors.New("invalid document reference")

	// ErrExtractionFailed means the extraction job reached the FAILED state.
	ErrExtractionFailed = errors.New("text extraction job failed")

	errLabelJobFailed = errors.New("label detection job failed")
)

// rejectionMessage maps an extraction submission rejection to the error payload
// returned to the invoker. It returns "" for any other error.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedDocument):
		return "Unsupported document format"
	case errors.Is(err, ErrInvalidDocumentReference):
		return "Invalid S3 object for textract"
	default:
		return ""
	}
}
