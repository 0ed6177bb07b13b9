// Package ingest turns a dropped timeline image into a saved file and a
// visible thumbnail.
//
// A run goes extract -> authorize -> canonicalize -> materialize. Every
// branch that silently does nothing is reported as a named Outcome, so the
// callers (window server, inbox watcher, CLI) can log it and tests can
// assert on it.
package ingest

// MIME types a drag payload may carry that the pipeline knows about.
const (
	MIMEHTML    = "text/html"
	MIMEURIList = "text/uri-list"
	MIMEPlain   = "text/plain"
)

// Entry is one MIME-typed string of a drag payload.
type Entry struct {
	Present bool
	Value   string
}

// DragPayload holds the known entries of a drop gesture. Unknown types
// are dropped when the payload is built.
type DragPayload struct {
	HTML    Entry
	URIList Entry
	Plain   Entry
}

// NewDragPayload builds a payload from the raw type -> data map of a drop.
func NewDragPayload(data map[string]string) DragPayload {
	var p DragPayload
	for mimeType, value := range data {
		switch mimeType {
		case MIMEHTML:
			p.HTML = Entry{Present: true, Value: value}
		case MIMEURIList:
			p.URIList = Entry{Present: true, Value: value}
		case MIMEPlain:
			p.Plain = Entry{Present: true, Value: value}
		}
	}
	return p
}

// HTMLPayload is shorthand for a payload carrying only an HTML fragment.
func HTMLPayload(fragment string) DragPayload {
	return DragPayload{HTML: Entry{Present: true, Value: fragment}}
}

// Types lists the MIME types present in the payload.
func (p DragPayload) Types() []string {
	var types []string
	if p.HTML.Present {
		types = append(types, MIMEHTML)
	}
	if p.URIList.Present {
		types = append(types, MIMEURIList)
	}
	if p.Plain.Present {
		types = append(types, MIMEPlain)
	}
	return types
}
