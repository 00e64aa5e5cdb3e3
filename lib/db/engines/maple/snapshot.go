package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple/internal"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Snapshot Format
// --------------------------------------------------------------------------

/*
All integers are little endian, strings are a uint32 length followed by the
bytes.

	magic      "DDOCMPL\x00"
	format     uint8
	version    uint64             schema version of the database
	stores     uint32
	per store:
	  name     string
	  keyPath  string
	  autoInc  uint8
	  seq      uint64
	  indexes  uint32, per index: name string, field string, unique uint8
	  records  uint64, per record: key string, value string
*/

const (
	magicNum      = "DDOCMPL\x00" // File format identifier
	formatVersion = 1             // Snapshot format version
)

// Save writes the committed state of the database to w. It waits for running
// read-write transactions and blocks new ones until it is done.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *mapleDatabase) Save(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := d.storeNames()
	stores := make([]*internal.Store, len(names))
	for i, name := range names {
		s, _ := d.stores.Load(name)
		s.Lock.RLock()
		defer s.Lock.RUnlock()
		stores[i] = s
	}

	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(formatVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, d.version); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(stores))); err != nil {
		return err
	}

	for _, s := range stores {
		if err := writeString(bw, s.Name); err != nil {
			return err
		}
		if err := writeString(bw, s.Opts.KeyPath); err != nil {
			return err
		}
		if err := writeBool(bw, s.Opts.AutoIncrement); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, s.Seq.Load()); err != nil {
			return err
		}

		indexNames := s.IndexNames()
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(indexNames))); err != nil {
			return err
		}
		for _, name := range indexNames {
			info := s.Indexes[name]
			if err := writeString(bw, info.Name); err != nil {
				return err
			}
			if err := writeString(bw, info.Field); err != nil {
				return err
			}
			if err := writeBool(bw, info.Unique); err != nil {
				return err
			}
		}

		keys := s.SortedKeys()
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(keys))); err != nil {
			return err
		}
		for _, key := range keys {
			value, _ := s.Records.Load(key)
			if err := writeString(bw, key); err != nil {
				return err
			}
			if err := writeBytes(bw, value); err != nil {
				return err
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the state of the database with a snapshot read from r. The
// state is only replaced if the whole snapshot could be read.
//
// Thread-safety: This method is thread-safe. It waits for all running
// transactions.
func (d *mapleDatabase) Load(r io.Reader) error {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var format uint8
	if err := binary.Read(br, binary.LittleEndian, &format); err != nil {
		return err
	}
	if format != formatVersion {
		return fmt.Errorf("unsupported snapshot format: %d (expected %d)", format, formatVersion)
	}

	var version uint64
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}

	var storeCount uint32
	if err := binary.Read(br, binary.LittleEndian, &storeCount); err != nil {
		return err
	}

	stores := xsync.NewMapOf[string, *internal.Store]()
	for i := uint32(0); i < storeCount; i++ {
		s, err := readStore(br)
		if err != nil {
			return fmt.Errorf("store %d: %w", i, err)
		}
		stores.Store(s.Name, s)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.stores = stores
	return nil
}

func readStore(br *bufio.Reader) (*internal.Store, error) {
	name, err := readString(br)
	if err != nil {
		return nil, err
	}
	keyPath, err := readString(br)
	if err != nil {
		return nil, err
	}
	autoInc, err := readBool(br)
	if err != nil {
		return nil, err
	}
	var seq uint64
	if err := binary.Read(br, binary.LittleEndian, &seq); err != nil {
		return nil, err
	}

	s := internal.NewStore(name, db.StoreOptions{KeyPath: keyPath, AutoIncrement: autoInc})
	s.Seq.Store(seq)

	var indexCount uint32
	if err := binary.Read(br, binary.LittleEndian, &indexCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < indexCount; i++ {
		var info db.IndexInfo
		if info.Name, err = readString(br); err != nil {
			return nil, err
		}
		if info.Field, err = readString(br); err != nil {
			return nil, err
		}
		if info.Unique, err = readBool(br); err != nil {
			return nil, err
		}
		s.Indexes[info.Name] = info
	}

	var recordCount uint64
	if err := binary.Read(br, binary.LittleEndian, &recordCount); err != nil {
		return nil, err
	}
	for i := uint64(0); i < recordCount; i++ {
		key, err := readString(br)
		if err != nil {
			return nil, err
		}
		value, err := readBytes(br)
		if err != nil {
			return nil, err
		}
		s.Records.Store(key, value)
	}
	return s, nil
}

// --------------------------------------------------------------------------
// Encoding Helpers
// --------------------------------------------------------------------------

// maxFieldLen guards against allocating huge buffers for corrupt input
const maxFieldLen = 1 << 30

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBool(w io.Writer, b bool) error {
	var v uint8
	if b {
		v = 1
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("field length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBool(r io.Reader) (bool, error) {
	var v uint8
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return false, err
	}
	return v != 0, nil
}
