package intake

import (
	"path"
	"strings"
)

// Decision is where a classified file belongs. The zero value means no
// decision was reached.
type Decision string

const (
	DecisionValidGeneric  Decision = "VALID_GENERIC"
	DecisionValidPassport Decision = "VALID_PASSPORT"
	DecisionInvalid       Decision = "INVALID"
)

// Destination folders. These are part of the contract with downstream consumers
// of the archive buckets.
const (
	ValidFolder    = "valid-docs-folder/"
	PassportFolder = "valid-docs-folder/passport/"
	InvalidFolder  = "invalid-docs-folder/"
)

// Valid reports whether the decision accepts the file as a government ID.
func (d Decision) Valid() bool {
	return d == DecisionValidGeneric || d == DecisionValidPassport
}

// Destination returns the archive location for a source key under decision d.
// It returns the zero ObjectRef for an empty decision.
func (d Decision) Destination(validBucket, invalidBucket, sourceKey string) ObjectRef {
	switch d {
	case DecisionValidGeneric:
		return ObjectRef{Bucket: validBucket, Key: ValidFolder + sourceKey}
	case DecisionValidPassport:
		return ObjectRef{Bucket: validBucket, Key: PassportFolder + sourceKey}
	case DecisionInvalid:
		return ObjectRef{Bucket: invalidBucket, Key: InvalidFolder + sourceKey}
	default:
		return ObjectRef{}
	}
}

// supportedExtensions is the format gate allow-list.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsSupportedFormat reports whether the key names a raster image the analysis
// services can work with. The comparison is case-insensitive.
func IsSupportedFormat(key string) bool {
	return supportedExtensions[strings.ToLower(path.Ext(key))]
}
