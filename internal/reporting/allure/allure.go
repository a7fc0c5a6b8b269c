// internal/reporting/allure/allure.go

// Package allure defines the on-disk document format consumed by the Allure
// report generator. One {uuid}-result.json per scenario plus one
// {uuid}-attachment.{ext} per attached artifact.
package allure

// Stage value for results written after execution completed.
const StageFinished = "finished"

// Label is a name/value pair used for report grouping (suite, host, ...).
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attachment references an artifact file stored next to the result document.
type Attachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// StatusDetails carries the failure message and trace shown in the report.
type StatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// Result is the per-scenario document.
type Result struct {
	UUID          string         `json:"uuid"`
	HistoryID     string         `json:"historyId"`
	Name          string         `json:"name"`
	FullName      string         `json:"fullName"`
	Status        string         `json:"status"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
	Stage         string         `json:"stage"`
	Start         int64          `json:"start"`
	Stop          int64          `json:"stop"`
	Labels        []Label        `json:"labels"`
	Attachments   []Attachment   `json:"attachments"`
}

// ExtensionFor maps an attachment media type to its file extension. The
// report generator relies on the extension, not the declared type.
func ExtensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "text/plain":
		return ".txt"
	case "text/html":
		return ".html"
	case "application/json":
		return ".json"
	case "application/zip":
		return ".zip"
	case "application/xml", "text/xml":
		return ".xml"
	case "video/webm":
		return ".webm"
	case "text/csv":
		return ".csv"
	default:
		return ".bin"
	}
}
