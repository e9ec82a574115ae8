// internal/browser/dom/script.go
package dom

import (
	"errors"
	"fmt"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/domscope/api/schemas"
)

// ErrNoScript is returned when no extraction script has been configured.
var ErrNoScript = errors.New("no extraction script configured")

// LoadScript reads the extraction script from disk. "~" is expanded to the home directory.
func LoadScript(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrNoScript
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand script path '%s': %w", path, err)
	}
	content, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to read extraction script: %w", err)
	}
	script := strings.TrimSpace(string(content))
	if script == "" {
		return "", fmt.Errorf("extraction script '%s' is empty", expanded)
	}
	return script, nil
}

// BuildInvocation wraps the script, which must evaluate to a function, into an expression that
// calls it with the JSON encoded parameter record.
func BuildInvocation(script string, params schemas.ExtractionParams) (string, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", ErrNoScript
	}
	// A trailing semicolon would turn the parenthesized function into a statement.
	script = strings.TrimRight(script, "; \t\r\n")

	paramsJSON, err := json.ConfigCompatibleWithStandardLibrary.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode extraction params: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", script, paramsJSON), nil
}
