package gemini

import "net/http"

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}
func WithSystemInstruction(s string) Option {
	return func(c *Client) { c.system = s }
}
