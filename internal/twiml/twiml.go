// Package twiml renders the small subset of Twilio's voice response markup
// the webhook needs: say a phrase and bridge the caller into a SIP endpoint.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// Response is the document root of a TwiML voice response.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Say     []Say    `xml:"Say,omitempty"`
	Dial    *Dial    `xml:"Dial,omitempty"`
}

// Say speaks a phrase to the caller with the given voice.
type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

// Dial connects the caller to another endpoint.
type Dial struct {
	Sip string `xml:"Sip,omitempty"`
}

// New returns an empty response. Rendered as-is it tells Twilio to do
// nothing, which is the correct answer for a duplicate webhook delivery.
func New() *Response {
	return &Response{}
}

// WithSay appends a spoken phrase using the "alice" voice.
func (r *Response) WithSay(text string) *Response {
	r.Say = append(r.Say, Say{Voice: "alice", Text: text})
	return r
}

// WithDialSip bridges the caller into the given SIP endpoint.
func (r *Response) WithDialSip(endpoint string) *Response {
	r.Dial = &Dial{Sip: endpoint}
	return r
}

// Render serializes the response with the XML declaration Twilio expects.
func (r *Response) Render() (string, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal TwiML: %w", err)
	}
	return xml.Header + string(body), nil
}
