package intake

import "strings"

// LabelVerdict is the outcome of label classification.
type LabelVerdict int

const (
	// VerdictReject means no document-like label was confident enough.
	VerdictReject LabelVerdict = iota
	// VerdictDocument means the image looks like a document and needs text extraction.
	VerdictDocument
	// VerdictPassport means a passport was recognised with high confidence.
	VerdictPassport
)

func (v LabelVerdict) String() string {
	switch v {
	case VerdictDocument:
		return "document"
	case VerdictPassport:
		return "passport"
	default:
		return "reject"
	}
}

const passportLabel = "Passport"

// documentLabels are the label names that make an image worth reading.
var documentLabels = map[string]bool{
	"Text":     true,
	"Person":   true,
	"Face":     true,
	"Head":     true,
	"QR Code":  true,
	"Document": true,
	"Id Cards": true,
	"Passport": true,
}

// ClassifyLabels applies the label rules. A Passport label at or above
// passportConfidence wins outright; otherwise any document-like label at or
// above minConfidence sends the file to text extraction.
func ClassifyLabels(labels []Label, minConfidence, passportConfidence float64) LabelVerdict {
	documentLike := false
	for _, l := range labels {
		if l.Name == passportLabel && l.Confidence >= passportConfidence {
			return VerdictPassport
		}
		if documentLabels[l.Name] && l.Confidence >= minConfidence {
			documentLike = true
		}
	}
	if documentLike {
		return VerdictDocument
	}
	return VerdictReject
}

// Mode selects which entity detection call is made for extracted text.
type Mode string

const (
	// ModeBaseline is coarse category detection filtered by a minimum score.
	// It applies when no keyword rule matches.
	ModeBaseline Mode = "baseline"
	// ModeCategories is unfiltered coarse category detection.
	ModeCategories Mode = "categories"
	// ModeOffsets is precise entity detection with character offsets.
	ModeOffsets Mode = "offsets"
)

// SelectMode picks the detection mode from whitespace-separated tokens of the
// text. Tokens must match exactly, case included. Rules are evaluated in order.
func SelectMode(text string) Mode {
	words := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		words[w] = true
	}
	switch {
	case words["Driving"] && words["Licence"]:
		return ModeOffsets
	case words["Aadhaar"]:
		return ModeCategories
	case words["Permanent"] && words["Account"] && words["Number"]:
		return ModeOffsets
	default:
		return ModeBaseline
	}
}

// ScanMode controls how an entity list is searched for an accepted identifier.
type ScanMode string

const (
	// ScanFull rejects only after every entity has been checked.
	ScanFull ScanMode = "full"
	// ScanLegacy decides on the first entity: a non-matching first entity
	// rejects the file even when a later one would have matched.
	ScanLegacy ScanMode = "legacy"
)

// ParseScanMode returns the scan mode named by s, defaulting to ScanFull.
func ParseScanMode(s string) (ScanMode, bool) {
	switch ScanMode(strings.ToLower(strings.TrimSpace(s))) {
	case ScanFull, "":
		return ScanFull, true
	case ScanLegacy:
		return ScanLegacy, true
	default:
		return ScanFull, false
	}
}

// acceptedEntity reports whether e identifies a recognised government ID.
// Coarse results are matched on category name, precise results on type.
func acceptedEntity(e Entity) bool {
	switch e.Kind {
	case KindCategory:
		return e.Name == "IN_AADHAAR"
	case KindOffset:
		return e.Name == "DRIVER_ID" || e.Name == "IN_PERMANENT_ACCOUNT_NUMBER"
	default:
		return false
	}
}

// MatchEntities searches entities for an accepted identifier and returns the
// first match.
func MatchEntities(entities []Entity, scan ScanMode) (Entity, bool) {
	for _, e := range entities {
		if acceptedEntity(e) {
			return e, true
		}
		if scan == ScanLegacy {
			return Entity{}, false
		}
	}
	return Entity{}, false
}

// filterScore keeps entities whose score is strictly above min.
func filterScore(entities []Entity, min float64) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Score > min {
			out = append(out, e)
		}
	}
	return out
}
