// ABOUTME: Response type returned to callers and normalization of loosely-typed
// ABOUTME: gateway payloads into it, including legacy text field fallbacks.

package bridge

// Response is the final answer for one request.
type Response struct {
	// Text is the full response text.
	Text string

	// Pages is the response split into displayable chunks. When the
	// gateway supplies no pages and Text is non-empty, Pages is a
	// single page equal to Text.
	Pages []string

	// MessageID is the gateway's identifier for this message, when
	// supplied. Used for duplicate suppression and logging only.
	MessageID string
}

// textFieldOrder lists the payload keys tried, in order, for the response
// text. Older gateway builds used "content" and, before that, "message".
var textFieldOrder = []string{"text", "content", "message"}

// normalizeResponse builds a Response from a generic key-value decode of a
// gateway payload. Unknown fields are ignored; missing pages are synthesized
// from the text.
func normalizeResponse(fields map[string]any) *Response {
	resp := &Response{}

	for _, key := range textFieldOrder {
		if v, ok := fields[key].(string); ok && v != "" {
			resp.Text = v
			break
		}
	}

	if raw, ok := fields["pages"].([]any); ok {
		for _, page := range raw {
			if s, ok := page.(string); ok {
				resp.Pages = append(resp.Pages, s)
			}
		}
	}
	if len(resp.Pages) == 0 && resp.Text != "" {
		resp.Pages = []string{resp.Text}
	}

	if v, ok := fields["messageId"].(string); ok {
		resp.MessageID = v
	}

	return resp
}
