package s3util

import (
	"net/url"

	"github.com/fpang/doc-intake/internal/intake"
)

// projectName is the cost-allocation tag value applied to every archived object.
const projectName = "doc-intake"

// Tagging returns the URL-encoded tagging string for an object archived under
// decision. Use as the Tagging field on CopyObjectInput with TaggingDirective
// REPLACE.
func Tagging(decision intake.Decision) string {
	v := url.Values{}
	v.Set("Project", projectName)
	if decision != "" {
		v.Set("Decision", string(decision))
	}
	return v.Encode()
}
