package history

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/FranksOps/endpoints/internal/endpoint"
)

type harFile struct {
	Log struct {
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	Request struct {
		URL string `json:"url"`
	} `json:"request"`
	Response *struct {
		Status  int         `json:"status"`
		Headers []harHeader `json:"headers"`
		Content struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadHAR reads an HTTP Archive and returns one message item per entry.
// Entries without a response are kept; the scanner counts and skips them.
func LoadHAR(r io.Reader) ([]endpoint.Item, error) {
	var har harFile
	if err := json.NewDecoder(r).Decode(&har); err != nil {
		return nil, fmt.Errorf("failed to decode har: %w", err)
	}

	items := make([]endpoint.Item, 0, len(har.Log.Entries))
	for i, e := range har.Log.Entries {
		msg := Message{RequestURL: e.Request.URL}

		if e.Response != nil {
			body := []byte(e.Response.Content.Text)
			if e.Response.Content.Encoding == "base64" {
				decoded, err := base64.StdEncoding.DecodeString(e.Response.Content.Text)
				if err != nil {
					return nil, fmt.Errorf("entry %d: failed to decode base64 body: %w", i, err)
				}
				body = decoded
			}

			header := make(http.Header, len(e.Response.Headers))
			for _, h := range e.Response.Headers {
				header.Add(h.Name, h.Value)
			}
			// HAR keeps the content mime type separately; some exporters
			// drop the header list entirely.
			if header.Get("Content-Type") == "" && e.Response.Content.MimeType != "" {
				header.Set("Content-Type", e.Response.Content.MimeType)
			}

			msg.Response = &Response{Header: header, Body: body}
		}

		items = append(items, endpoint.MessageItem(msg))
	}
	return items, nil
}

// LoadHARFile opens path and loads it with LoadHAR.
func LoadHARFile(path string) ([]endpoint.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open har file: %w", err)
	}
	defer f.Close()

	items, err := LoadHAR(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}
