package history

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

// Message is one captured request/response exchange.
type Message struct {
	RequestURL string
	Response   *Response
}

// Response is the captured response side of a Message.
type Response struct {
	Header http.Header
	// StatedMIME is the capture tool's own classification (HTML, JSON,
	// script, TEXT, unknown), used when no Content-Type header is present.
	StatedMIME string
	Body       []byte
}

var statedMIMETypes = map[string]string{
	"HTML":    "text/html",
	"JSON":    "application/json",
	"script":  "application/javascript",
	"TEXT":    "text/plain",
	"unknown": "text/plain",
}

// Adapter turns captured messages into scan payloads.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

// RequestURL returns the URL the message was requested from.
func (a *Adapter) RequestURL(msg Message) string {
	return strings.TrimSpace(msg.RequestURL)
}

// ContentType returns the bare lower-cased MIME type of resp. The
// Content-Type header wins; otherwise the stated MIME is mapped; otherwise
// the body is sniffed.
func (a *Adapter) ContentType(resp *Response) string {
	if resp == nil {
		return ""
	}
	if v := bareMIME(resp.Header.Get("Content-Type")); v != "" {
		return v
	}
	if v, ok := statedMIMETypes[resp.StatedMIME]; ok {
		return v
	}
	if len(resp.Body) == 0 {
		return ""
	}
	return bareMIME(http.DetectContentType(resp.Body))
}

// DecodeBody returns the body as text. Valid UTF-8 is used as is, then the
// declared charset if it is recognised, then Latin-1, which never fails.
func (a *Adapter) DecodeBody(resp *Response) string {
	if resp == nil || len(resp.Body) == 0 {
		return ""
	}
	if utf8.Valid(resp.Body) {
		return string(resp.Body)
	}

	if label := declaredCharset(resp.Header.Get("Content-Type")); label != "" {
		if enc, name := charset.Lookup(label); enc != nil && name != "utf-8" {
			if out, err := enc.NewDecoder().Bytes(resp.Body); err == nil {
				return string(out)
			}
			a.logger.Debug("declared charset failed, using latin-1", "charset", name)
		}
	}

	out, err := charmap.ISO8859_1.NewDecoder().Bytes(resp.Body)
	if err != nil {
		return string(resp.Body)
	}
	return string(out)
}

// Resolve implements scanner.MessageAdapter for Message and *Message. ok is
// false when the message carries no response body.
func (a *Adapter) Resolve(msg any) (endpoint.Payload, bool, error) {
	var m Message
	switch v := msg.(type) {
	case Message:
		m = v
	case *Message:
		if v == nil {
			return endpoint.Payload{}, false, nil
		}
		m = *v
	default:
		return endpoint.Payload{}, false, fmt.Errorf("unsupported history message type %T", msg)
	}

	if m.Response == nil || len(m.Response.Body) == 0 {
		return endpoint.Payload{}, false, nil
	}

	return endpoint.Payload{
		SourceURL:    a.RequestURL(m),
		ContentType:  a.ContentType(m.Response),
		ResponseText: a.DecodeBody(m.Response),
	}, true, nil
}

func bareMIME(value string) string {
	value, _, _ = strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(value))
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
