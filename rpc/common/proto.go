package common

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/goccy/go-json"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. Documents, filters
// and updates are carried in the binary document encoding, so Int and Float
// values survive every serializer unchanged. Filters are sent in their tagged
// form, the server evaluates exactly the conditions the client built.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Doc    []byte `json:"doc,omitempty"`    // Used for: InsertOne (request), FindOne (response)
	Filter []byte `json:"filter,omitempty"` // Used for: Find, FindOne, Count, UpdateOne, DeleteOne
	Update []byte `json:"update,omitempty"` // Used for: UpdateOne

	// Response only fields
	Docs    [][]byte `json:"docs,omitempty"`    // Used for: Find
	ID      string   `json:"id,omitempty"`      // Used for: InsertOne
	Count   uint64   `json:"count,omitempty"`   // Used for: Count, UpdateOne (modified), DeleteOne (deleted)
	Matched uint64   `json:"matched,omitempty"` // Used for: UpdateOne
	Names   []string `json:"names,omitempty"`   // Used for: ListCollections
	Ok      bool     `json:"ok,omitempty"`      // Used for: FindOne
	Err     string   `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message
	Code    uint64   `json:"code,omitempty"`    // store.RetCode of Err
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewInsertOneRequest creates a new InsertOne request
func NewInsertOneRequest(doc document.Document) *Message {
	return &Message{
		MsgType: MsgTInsertOne,
		Doc:     document.Encode(doc),
	}
}

// NewInsertOneResponse creates a new InsertOne response
func NewInsertOneResponse(res store.InsertOneResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTInsertOne,
		ID:      res.InsertedID,
	}
	msg.SetError(err)
	return msg
}

// NewFindRequest creates a new Find request
func NewFindRequest(filter query.Filter) *Message {
	return &Message{
		MsgType: MsgTFind,
		Filter:  document.Encode(filter.Encode()),
	}
}

// NewFindResponse creates a new Find response from a cursor
func NewFindResponse(cur *store.Cursor, err error) *Message {
	msg := &Message{
		MsgType: MsgTFind,
	}
	if cur != nil {
		for _, d := range cur.All() {
			msg.Docs = append(msg.Docs, document.Encode(d))
		}
	}
	msg.SetError(err)
	return msg
}

// NewFindOneRequest creates a new FindOne request
func NewFindOneRequest(filter query.Filter) *Message {
	return &Message{
		MsgType: MsgTFindOne,
		Filter:  document.Encode(filter.Encode()),
	}
}

// NewFindOneResponse creates a new FindOne response
func NewFindOneResponse(doc document.Document, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTFindOne,
		Ok:      ok,
	}
	if ok {
		msg.Doc = document.Encode(doc)
	}
	msg.SetError(err)
	return msg
}

// NewCountRequest creates a new CountDocuments request
func NewCountRequest(filter query.Filter) *Message {
	return &Message{
		MsgType: MsgTCount,
		Filter:  document.Encode(filter.Encode()),
	}
}

// NewCountResponse creates a new CountDocuments response
func NewCountResponse(n int, err error) *Message {
	msg := &Message{
		MsgType: MsgTCount,
		Count:   uint64(n),
	}
	msg.SetError(err)
	return msg
}

// NewUpdateOneRequest creates a new UpdateOne request
func NewUpdateOneRequest(match query.Filter, update store.Update) *Message {
	return &Message{
		MsgType: MsgTUpdateOne,
		Filter:  document.Encode(match.Encode()),
		Update:  document.Encode(update.Document()),
	}
}

// NewUpdateOneResponse creates a new UpdateOne response
func NewUpdateOneResponse(res store.UpdateResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTUpdateOne,
		Matched: uint64(res.MatchedCount),
		Count:   uint64(res.ModifiedCount),
	}
	msg.SetError(err)
	return msg
}

// NewDeleteOneRequest creates a new DeleteOne request
func NewDeleteOneRequest(match query.Filter) *Message {
	return &Message{
		MsgType: MsgTDeleteOne,
		Filter:  document.Encode(match.Encode()),
	}
}

// NewDeleteOneResponse creates a new DeleteOne response
func NewDeleteOneResponse(res store.DeleteResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTDeleteOne,
		Count:   uint64(res.DeletedCount),
	}
	msg.SetError(err)
	return msg
}

// NewListCollectionsRequest creates a new ListCollections request
func NewListCollectionsRequest() *Message {
	return &Message{
		MsgType: MsgTListCollections,
	}
}

// NewListCollectionsResponse creates a new ListCollections response
func NewListCollectionsResponse(names []string, err error) *Message {
	msg := &Message{
		MsgType: MsgTListCollections,
		Names:   names,
	}
	msg.SetError(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTError,
	}
	msg.SetError(err)
	return msg
}

// --------------------------------------------------------------------------
// Payload Accessors
// --------------------------------------------------------------------------

// SetError stores err in the message. The code of a *store.Error is kept so
// the client can re-raise it with the same code.
func (m *Message) SetError(err error) {
	if err == nil {
		return
	}
	var se *store.Error
	if errors.As(err, &se) {
		m.Code = uint64(se.Code)
		m.Err = se.Detail()
		return
	}
	m.Code = uint64(store.RetCInternalError)
	m.Err = err.Error()
}

// Error returns the error carried by the message as a *store.Error, or nil.
func (m *Message) Error() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := store.RetCode(m.Code)
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// Document decodes the Doc field.
func (m *Message) Document() (document.Document, error) {
	return decode("doc", m.Doc)
}

// ParseFilter decodes the Filter field, which carries the tagged form of
// query.Filter.Encode. An absent filter matches everything.
func (m *Message) ParseFilter() (query.Filter, error) {
	if len(m.Filter) == 0 {
		return nil, nil
	}
	tagged, err := decode("filter", m.Filter)
	if err != nil {
		return nil, err
	}
	f, err := query.Decode(tagged)
	if err != nil {
		return nil, store.WrapError(store.RetCInvalidOperation, err, "invalid filter")
	}
	return f, nil
}

// ParseUpdate decodes the Update field.
func (m *Message) ParseUpdate() (store.Update, error) {
	spec, err := decode("update", m.Update)
	if err != nil {
		return store.Update{}, err
	}
	return store.ParseUpdate(spec)
}

// Documents decodes the Docs field.
func (m *Message) Documents() ([]document.Document, error) {
	docs := make([]document.Document, 0, len(m.Docs))
	for _, raw := range m.Docs {
		d, err := decode("docs", raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func decode(field string, b []byte) (document.Document, error) {
	d, err := document.Decode(b)
	if err != nil {
		return nil, store.WrapError(store.RetCInvalidOperation, err, "decoding %s", field)
	}
	return d, nil
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTInsertOne:
		return "insertOne"
	case MsgTFind:
		return "find"
	case MsgTFindOne:
		return "findOne"
	case MsgTCount:
		return "countDocuments"
	case MsgTUpdateOne:
		return "updateOne"
	case MsgTDeleteOne:
		return "deleteOne"
	case MsgTListCollections:
		return "listCollections"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for candidate := MsgTUnknown; candidate <= MsgTListCollections; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ICollection operations

	MsgTInsertOne // Insert a document
	MsgTFind      // Find all matching documents
	MsgTFindOne   // Find the first matching document
	MsgTCount     // Count matching documents
	MsgTUpdateOne // Merge an update into a document
	MsgTDeleteOne // Delete a document

	// IStore operations

	MsgTListCollections // List the declared collections
)
