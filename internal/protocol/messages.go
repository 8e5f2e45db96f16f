package protocol

import (
	"encoding/json"

	"github.com/quillsync/quill/pkg/changeset"
	"github.com/quillsync/quill/pkg/revlog"
)

// UserInfo is a connected user's display information, broadcast to peers
// on join and on change. Purely presentational: it never affects OT
// convergence.
type UserInfo struct {
	Name string `json:"name"`
	Hue  uint32 `json:"hue"`
}

// CursorData is a user's cursor and selection ranges, in UTF-16
// code-unit offsets. Best-effort presence, not part of the revision log.
type CursorData struct {
	Cursors    []uint32    `json:"cursors"`
	Selections [][2]uint32 `json:"selections"`
}

// ClientMsg is a message sent from client to server over the document's
// WebSocket connection. Only one field is ever set (tagged union).
type ClientMsg struct {
	Submit     *SubmitMsg  `json:"Submit,omitempty"`
	ClientInfo *UserInfo   `json:"ClientInfo,omitempty"`
	CursorData *CursorData `json:"CursorData,omitempty"`
}

// SubmitMsg is SubmitDocumentChangeSet's request payload.
type SubmitMsg struct {
	OnRevisionNumber int                  `json:"on_revision_number"`
	ChangeSet        *changeset.ChangeSet `json:"change_set"`
}

// ServerMsg is a message sent from server to client. Only one field is
// ever set (tagged union).
type ServerMsg struct {
	Identity  *IdentityMsg  `json:"Identity,omitempty"`
	History   *HistoryMsg   `json:"History,omitempty"`
	SubmitAck *SubmitAckMsg `json:"SubmitAck,omitempty"`
}

// IdentityMsg assigns the connecting client its author ID for this
// session.
type IdentityMsg struct {
	AuthorID string `json:"author_id"`
}

// HistoryMsg carries GetDocumentRevisions' response: every revision after
// Start, plus whether the caller has now caught up to the log's head.
type HistoryMsg struct {
	Start          int               `json:"start"`
	Revisions      []revlog.Revision `json:"revisions"`
	EndOfRevisions bool              `json:"end_of_revisions"`
}

// SubmitAckMsg carries SubmitDocumentChangeSet's response: the response
// code plus whatever revisions the client needs to catch up on (empty in
// the plain ACK case).
type SubmitAckMsg struct {
	ResponseCode       string            `json:"response_code"`
	LastRevisionNumber int               `json:"last_revision_number"`
	Revisions          []revlog.Revision `json:"revisions"`
	EndOfRevisions     bool              `json:"end_of_revisions"`
}

// MarshalJSON ensures only the populated field of ServerMsg is emitted.
func (m *ServerMsg) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{}, 1)
	switch {
	case m.Identity != nil:
		result["Identity"] = m.Identity
	case m.History != nil:
		result["History"] = m.History
	case m.SubmitAck != nil:
		result["SubmitAck"] = m.SubmitAck
	}
	return json.Marshal(result)
}

// UnmarshalJSON decodes whichever field is present in a ClientMsg.
func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["Submit"]; ok {
		var sub SubmitMsg
		if err := json.Unmarshal(v, &sub); err != nil {
			return err
		}
		m.Submit = &sub
	}
	if v, ok := raw["ClientInfo"]; ok {
		var info UserInfo
		if err := json.Unmarshal(v, &info); err != nil {
			return err
		}
		m.ClientInfo = &info
	}
	if v, ok := raw["CursorData"]; ok {
		var cursor CursorData
		if err := json.Unmarshal(v, &cursor); err != nil {
			return err
		}
		m.CursorData = &cursor
	}
	return nil
}

// NewIdentityMsg builds an Identity server message.
func NewIdentityMsg(authorID string) *ServerMsg {
	return &ServerMsg{Identity: &IdentityMsg{AuthorID: authorID}}
}

// NewHistoryMsg builds a History server message.
func NewHistoryMsg(start int, revs []revlog.Revision, endOfRevisions bool) *ServerMsg {
	return &ServerMsg{History: &HistoryMsg{Start: start, Revisions: revs, EndOfRevisions: endOfRevisions}}
}

// NewSubmitAckMsg builds a SubmitAck server message.
func NewSubmitAckMsg(code string, lastRev int, revs []revlog.Revision, endOfRevisions bool) *ServerMsg {
	return &ServerMsg{SubmitAck: &SubmitAckMsg{
		ResponseCode:       code,
		LastRevisionNumber: lastRev,
		Revisions:          revs,
		EndOfRevisions:     endOfRevisions,
	}}
}
