package model

// Document is a schemaless command or write-concern document. Documents are
// JSON-encoded on the shard command interface; this core never interprets
// caller-supplied fields, it only copies them and injects its own.
type Document map[string]interface{}

// Clone returns a shallow copy of the document. Field values are shared;
// callers only ever add or overwrite top-level fields on the copy.
func (d Document) Clone() Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// CommandResult is a shard's reply to a command. Ok mirrors the "ok" field
// of the reply document.
type CommandResult struct {
	Ok  bool     `json:"ok"`
	Doc Document `json:"doc,omitempty"`
}

// ErrMsg extracts the shard-reported error message from the reply, or a
// generic message when the shard did not include one.
func (r CommandResult) ErrMsg() string {
	if r.Doc != nil {
		if msg, ok := r.Doc["errmsg"].(string); ok && msg != "" {
			return msg
		}
	}
	if !r.Ok {
		return "command returned not-ok"
	}
	return ""
}
