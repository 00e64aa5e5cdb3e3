package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: message type (1 byte), presence flags (2 bytes, big endian), then
// every present field in flag order. Lengths and integers are uvarints.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasDoc     uint16 = 1 << 0
	hasFilter  uint16 = 1 << 1
	hasUpdate  uint16 = 1 << 2
	hasDocs    uint16 = 1 << 3
	hasID      uint16 = 1 << 4
	hasCount   uint16 = 1 << 5
	hasMatched uint16 = 1 << 6
	hasNames   uint16 = 1 << 7
	hasOk      uint16 = 1 << 8
	hasErr     uint16 = 1 << 9
	hasCode    uint16 = 1 << 10
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := make([]byte, headerSize, b.sizeHint(msg))
	buf[0] = byte(msg.MsgType)

	var flags uint16
	if msg.Doc != nil {
		flags |= hasDoc
		buf = appendBytes(buf, msg.Doc)
	}
	if msg.Filter != nil {
		flags |= hasFilter
		buf = appendBytes(buf, msg.Filter)
	}
	if msg.Update != nil {
		flags |= hasUpdate
		buf = appendBytes(buf, msg.Update)
	}
	if msg.Docs != nil {
		flags |= hasDocs
		buf = binary.AppendUvarint(buf, uint64(len(msg.Docs)))
		for _, d := range msg.Docs {
			buf = appendBytes(buf, d)
		}
	}
	if msg.ID != "" {
		flags |= hasID
		buf = appendBytes(buf, []byte(msg.ID))
	}
	if msg.Count != 0 {
		flags |= hasCount
		buf = binary.AppendUvarint(buf, msg.Count)
	}
	if msg.Matched != 0 {
		flags |= hasMatched
		buf = binary.AppendUvarint(buf, msg.Matched)
	}
	if msg.Names != nil {
		flags |= hasNames
		buf = binary.AppendUvarint(buf, uint64(len(msg.Names)))
		for _, n := range msg.Names {
			buf = appendBytes(buf, []byte(n))
		}
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
		buf = appendBytes(buf, []byte(msg.Err))
	}
	if msg.Code != 0 {
		flags |= hasCode
		buf = binary.AppendUvarint(buf, msg.Code)
	}

	// flags are known only after all fields are written
	binary.BigEndian.PutUint16(buf[1:headerSize], flags)
	return buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:headerSize])
	r := reader{data: data[headerSize:]}

	if flags&hasDoc != 0 {
		msg.Doc = r.bytes("doc")
	}
	if flags&hasFilter != 0 {
		msg.Filter = r.bytes("filter")
	}
	if flags&hasUpdate != 0 {
		msg.Update = r.bytes("update")
	}
	if flags&hasDocs != 0 {
		n := r.count("docs")
		msg.Docs = make([][]byte, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Docs = append(msg.Docs, r.bytes("docs"))
		}
	}
	if flags&hasID != 0 {
		msg.ID = string(r.bytes("id"))
	}
	if flags&hasCount != 0 {
		msg.Count = r.uvarint("count")
	}
	if flags&hasMatched != 0 {
		msg.Matched = r.uvarint("matched")
	}
	if flags&hasNames != 0 {
		n := r.count("names")
		msg.Names = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Names = append(msg.Names, string(r.bytes("names")))
		}
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("err"))
	}
	if flags&hasCode != 0 {
		msg.Code = r.uvarint("code")
	}
	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeHint estimates the serialized size to avoid regrowing the buffer
func (b binarySerializerImpl) sizeHint(msg common.Message) int {
	size := headerSize + len(msg.Doc) + len(msg.Filter) + len(msg.Update) + len(msg.ID) + len(msg.Err) + 3*binary.MaxVarintLen64
	for _, d := range msg.Docs {
		size += len(d) + binary.MaxVarintLen32
	}
	for _, n := range msg.Names {
		size += len(n) + binary.MaxVarintLen32
	}
	return size + 8*binary.MaxVarintLen32
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// reader consumes fields and keeps the first error
type reader struct {
	data []byte
	err  error
}

func (r *reader) uvarint(field string) uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		r.err = fmt.Errorf("data too short for %s", field)
		return 0
	}
	r.data = r.data[n:]
	return v
}

// count reads a slice length and checks that it is plausible, every element
// takes at least one byte.
func (r *reader) count(field string) int {
	n := r.uvarint(field)
	if r.err == nil && n > uint64(len(r.data)) {
		r.err = fmt.Errorf("invalid element count for %s", field)
		return 0
	}
	return int(n)
}

// bytes returns a copy so the message does not alias the input buffer
func (r *reader) bytes(field string) []byte {
	n := r.uvarint(field)
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.data)) {
		r.err = fmt.Errorf("data too short for %s data", field)
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[:n])
	r.data = r.data[n:]
	return out
}
