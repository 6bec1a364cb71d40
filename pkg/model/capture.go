package model

// WindowContext carries whatever the capture collaborator knows about the
// active window. Both fields are optional; empty means unknown.
type WindowContext struct {
	AppHint string `json:"app_hint,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Capture is the product of the screen capture collaborator: an image blob
// plus window context. The core only ever hands it to an analyzer.
type Capture struct {
	Image    []byte
	MIMEType string
	Window   WindowContext
}
