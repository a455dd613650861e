package pipeline

import (
	"encoding/base64"
	"fmt"
)

// Event is the inbound wire shape, a JSON Activity Streams 1.0 object. The
// verb selects the operation; actor, object and target carry its arguments.
type Event struct {
	ID        string `json:"id"`
	Verb      string `json:"verb"`
	Actor     Actor  `json:"actor"`
	Object    Object `json:"object,omitempty"`
	Target    Target `json:"target,omitempty"`
	Published string `json:"published,omitempty"`
}

type Actor struct {
	ID          string       `json:"id"`
	Summary     string       `json:"summary,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Object struct {
	ID          string       `json:"id,omitempty"`
	Content     string       `json:"content,omitempty"` // base64 for message bodies
	URL         string       `json:"url,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	ObjectType  string       `json:"objectType,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Target struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	ObjectType  string `json:"objectType,omitempty"` // room, group or private
}

// Attachment is a typed key/value pair: connect tokens on the actor, acl
// entries and message-id lists on the object.
type Attachment struct {
	ObjectType string `json:"objectType"`
	Content    string `json:"content"`
}

// Response is the reply event sent to the originator of each inbound event.
type Response struct {
	Status int    `json:"status"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func ok(data any) Response {
	return Response{Status: 200, Data: data}
}

// decodeContent unwraps a base64-encoded object content.
func decodeContent(content string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("content is not valid base64: %w", err)
	}
	return string(decoded), nil
}

func encodeContent(content string) string {
	return base64.StdEncoding.EncodeToString([]byte(content))
}

// attachment returns the content of the first attachment of the given type.
func attachment(attachments []Attachment, objectType string) (string, bool) {
	for _, a := range attachments {
		if a.ObjectType == objectType {
			return a.Content, true
		}
	}
	return "", false
}
