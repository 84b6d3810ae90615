package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrConfigValidation = errors.New("configuration validation error")
	ErrParsing          = errors.New("parsing error")      // Wraps specific parsing errors (YAML, JSON, XML, robots)
	ErrFrontMatter      = errors.New("front matter error") // Malformed or unterminated front matter
	ErrFilesystem       = errors.New("filesystem error")   // Wraps os errors
	ErrDatabase         = errors.New("database error")     // Wraps badger errors
	ErrRender           = errors.New("render error")
	ErrHTMLConversion   = errors.New("failed to convert HTML to markdown")
	ErrAuditFailed      = errors.New("site audit failed")
	ErrRobotsBlocked    = errors.New("sitemap URL blocked by robots.txt")
)

// WrapErrorf prefixes err with a formatted message, keeping it matchable with errors.Is.
// Returns nil for a nil error.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CategorizeError maps an error to a predefined category string for logging.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrFrontMatter):
		return "Content_FrontMatter"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "YAML") {
			return "Content_ParsingYAML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		if strings.Contains(errMsg, "XML") {
			return "Content_ParsingXML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrHTMLConversion):
		return "Content_HTMLConversion"
	case errors.Is(err, ErrRender):
		return "Content_Render"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		if errors.Is(err, os.ErrExist) {
			return "Filesystem_Exist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrAuditFailed):
		return "Audit_Failed"
	case errors.Is(err, ErrRobotsBlocked):
		return "Policy_RobotsBlocked"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if errors.Is(err, os.ErrNotExist) {
		return "Filesystem_NotExist"
	}
	if errors.Is(err, os.ErrPermission) {
		return "Filesystem_Permission"
	}

	return "Unknown"
}
