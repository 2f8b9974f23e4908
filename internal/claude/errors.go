package claude

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

const previewChars = 500

func timeoutError(timeout time.Duration) error {
	return common.NewAppError("TOOL_TIMEOUT",
		fmt.Sprintf("Claude Code execution timed out after %d seconds", int(timeout.Seconds())),
		common.ErrToolTimeout)
}

func executionError(message string) error {
	return common.NewAppError("TOOL_EXECUTION", message, common.ErrToolExecution)
}

func parsingError(message string) error {
	return common.NewAppError("OUTPUT_PARSING", message, common.ErrOutputParsing)
}

// preview returns at most n runes of s.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
