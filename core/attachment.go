package core

// Attachment references binary content flowing alongside text: an inbound
// image on the run's first message, or media produced by a tool. Exactly one
// of Data or URL is populated. Backends that do not understand a given
// MimeType drop the attachment silently rather than erroring.
type Attachment struct {
	// MimeType of the content, e.g. "image/png".
	MimeType string `json:"mime_type"`
	// Data holds base64 encoded inline content.
	Data string `json:"data,omitempty"`
	// URL points at externally hosted content.
	URL string `json:"url,omitempty"`
	// Name is an optional filename hint.
	Name string `json:"name,omitempty"`
}

// Inline reports whether the attachment carries its content inline.
func (a Attachment) Inline() bool { return a.Data != "" }
