package mediawiki

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the closed classification an upload call resolves to.
// Transport-level failures are reported as Go errors instead and are
// the retryable class; a Status is always a definite answer from the
// wiki.
type Status int

const (
	StatusSuccess Status = iota
	// StatusDuplicate: the content already exists under another name.
	StatusDuplicate
	// StatusExists: a file with this exact name already exists.
	StatusExists
	// StatusURLDisabled: upload-by-URL is switched off on this wiki.
	StatusURLDisabled
	StatusPermissionDenied
	StatusRateLimited
	StatusOther
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDuplicate:
		return "duplicate"
	case StatusExists:
		return "exists"
	case StatusURLDisabled:
		return "url_disabled"
	case StatusPermissionDenied:
		return "permission_denied"
	case StatusRateLimited:
		return "ratelimited"
	case StatusOther:
		return "other"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is the classified result of one upload call.
type Outcome struct {
	Status Status
	// DuplicateOf names the pre-existing file when Status is
	// StatusDuplicate, already normalized from underscore form.
	DuplicateOf string
	// Message carries free-text context for StatusOther and friends.
	Message string
}

// apiError is the standard MediaWiki error envelope.
type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// uploadResponse is the wire shape of an action=upload reply.
type uploadResponse struct {
	Error  *apiError `json:"error"`
	Upload *struct {
		Result   string                     `json:"result"`
		Warnings map[string]json.RawMessage `json:"warnings"`
	} `json:"upload"`
}

// classifyUpload maps an upload reply onto the closed outcome set.
// Callers switch on Status exhaustively; nothing here is parsed from
// free text downstream.
func classifyUpload(resp uploadResponse) Outcome {
	if resp.Error != nil {
		return classifyError(*resp.Error)
	}

	if resp.Upload == nil {
		return Outcome{Status: StatusOther, Message: "empty API response"}
	}

	if resp.Upload.Result == "Success" {
		return Outcome{Status: StatusSuccess}
	}

	if name, ok := duplicateWarning(resp.Upload.Warnings); ok {
		return Outcome{Status: StatusDuplicate, DuplicateOf: name}
	}
	if _, ok := resp.Upload.Warnings["exists"]; ok {
		return Outcome{Status: StatusExists}
	}

	return Outcome{Status: StatusOther, Message: fmt.Sprintf("unexpected upload result %q", resp.Upload.Result)}
}

// classifyError maps the API error envelope. The codes mirror what the
// target wiki actually sends, e.g.
// {"error":{"code":"copyuploaddisabled","info":"Upload by URL disabled."}}
func classifyError(e apiError) Outcome {
	info := strings.ToLower(e.Info)

	switch {
	case e.Code == "copyuploaddisabled" || strings.Contains(info, "upload by url disabled"):
		return Outcome{Status: StatusURLDisabled, Message: e.Info}
	case e.Code == "ratelimited" || e.Code == "throttled" || strings.Contains(e.Code, "rate"):
		return Outcome{Status: StatusRateLimited, Message: e.Info}
	case e.Code == "permissiondenied" || e.Code == "badtoken" || e.Code == "mwoauth-invalid-authorization":
		return Outcome{Status: StatusPermissionDenied, Message: e.Info}
	}

	return Outcome{Status: StatusOther, Message: fmt.Sprintf("%s: %s", e.Code, e.Info)}
}

// duplicateWarning extracts the first duplicate name from the warnings
// block. The API reports titles with underscores; display form uses
// spaces, so the swap happens here at the boundary.
func duplicateWarning(warnings map[string]json.RawMessage) (string, bool) {
	raw, ok := warnings["duplicate"]
	if !ok {
		return "", false
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil || len(names) == 0 || names[0] == "" {
		return "", false
	}

	return strings.ReplaceAll(names[0], "_", " "), true
}
