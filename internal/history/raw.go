package history

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ReadRawResponse parses a raw HTTP/1.x response dump, status line and
// headers included, into a Message for requestURL.
func ReadRawResponse(requestURL string, raw []byte) (Message, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return Message{}, fmt.Errorf("failed to parse raw response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil && len(body) == 0 {
		return Message{}, fmt.Errorf("failed to read raw response body: %w", err)
	}

	return Message{
		RequestURL: requestURL,
		Response: &Response{
			Header: resp.Header,
			Body:   body,
		},
	}, nil
}
