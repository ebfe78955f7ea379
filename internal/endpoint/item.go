package endpoint

// Payload is a decoded history item, the only shape the scan pipeline works on.
type Payload struct {
	SourceURL    string `json:"source_url"`
	ContentType  string `json:"content_type"`
	ResponseText string `json:"response_text"`
}

// Item is one entry of scan input. It holds either an already decoded
// Payload or an opaque platform message that a message adapter resolves
// into a Payload at the pipeline boundary. The zero Item carries neither and
// is treated as a message without a response.
type Item struct {
	payload *Payload
	message any
}

// PayloadItem wraps a decoded payload.
func PayloadItem(p Payload) Item {
	return Item{payload: &p}
}

// MessageItem wraps a platform message that still needs decoding.
func MessageItem(msg any) Item {
	return Item{message: msg}
}

// Payload returns the decoded payload if the item carries one.
func (i Item) Payload() (Payload, bool) {
	if i.payload == nil {
		return Payload{}, false
	}
	return *i.payload, true
}

// Message returns the raw platform message, or nil.
func (i Item) Message() any {
	return i.message
}
