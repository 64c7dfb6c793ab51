package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

const componentName = "platform.github"

// mapHTTPError maps a GitHub API HTTP status code to the platform-wide
// typed error taxonomy, so the task queue's retry decision does not
// need GitHub-specific knowledge.
func mapHTTPError(statusCode int, body []byte) *platformerrors.Error {
	message := parseErrorMessage(statusCode, body)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return platformerrors.New(platformerrors.KindAuthentication, componentName, message)
	case statusCode == http.StatusTooManyRequests:
		return platformerrors.New(platformerrors.KindTransient, componentName, message)
	case statusCode == http.StatusNotFound || statusCode == http.StatusUnprocessableEntity:
		return platformerrors.New(platformerrors.KindValidation, componentName, message)
	case statusCode >= 500:
		return platformerrors.New(platformerrors.KindTransient, componentName, message)
	default:
		return platformerrors.New(platformerrors.KindPermanent, componentName, message)
	}
}

func parseErrorMessage(statusCode int, body []byte) string {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		preview := string(body)
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		if preview == "" {
			return fmt.Sprintf("HTTP %d", statusCode)
		}
		return fmt.Sprintf("HTTP %d: %s", statusCode, preview)
	}

	if errResp.Message == "" {
		return fmt.Sprintf("HTTP %d", statusCode)
	}

	if len(errResp.Errors) > 0 {
		var details []string
		for _, e := range errResp.Errors {
			if e.Message != "" {
				details = append(details, e.Message)
			} else if e.Field != "" {
				details = append(details, fmt.Sprintf("%s: %s", e.Field, e.Code))
			}
		}
		if len(details) > 0 {
			return fmt.Sprintf("%s: %s", errResp.Message, strings.Join(details, "; "))
		}
	}

	return errResp.Message
}
