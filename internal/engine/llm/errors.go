package llm

import (
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
)

// IsAuthError reports whether err came back from a provider API with an
// authentication or authorization failure. Callers use this to surface a
// configuration problem instead of a transient prompt failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode == 401 || oaiErr.StatusCode == 403
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode == 401 || antErr.StatusCode == 403
	}

	return false
}
