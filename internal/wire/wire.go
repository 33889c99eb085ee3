// Package wire implements the binary record envelope written to backends.
//
// The envelope is self-validating: a magic prefix, a format version and
// strict length checks let the reader distinguish tagcache records from
// foreign or truncated writes and self-heal by deleting them.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

const flagPermanent byte = 1 << 0

var (
	ErrCorrupt = errors.New("tagcache: corrupt record envelope")
	magic4     = [...]byte{'T', 'G', 'C', 'H'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// TagVersion is a tag name with the version epoch captured at write time.
type TagVersion struct {
	Name    string
	Version int64 // unix ms
}

// Envelope is the decoded form of a stored record.
type Envelope struct {
	CreatedAt int64 // unix ms at write
	ExpiresIn int64 // ms; ignored by readers when Permanent
	Permanent bool
	Tags      []TagVersion
	Payload   []byte
}

// Layout:
//
//	magic(4) | ver(1) | flags(1) | createdAt(u64 be) | expiresIn(u64 be) |
//	tagCount(u16 be) | { nameLen(u16 be) | name | version(u64 be) }* |
//	vlen(u32 be) | payload(vlen)
//
// Decode rejects trailing bytes so a foreign write cannot smuggle data past
// the payload length.
func Encode(e Envelope) []byte {
	total := 4 + 1 + 1 + 8 + 8 + 2
	for _, t := range e.Tags {
		total += 2 + len(t.Name) + 8
	}
	total += 4 + len(e.Payload)

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var flags byte
	if e.Permanent {
		flags |= flagPermanent
	}
	buf.WriteByte(flags)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.CreatedAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(e.ExpiresIn))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])

	for _, t := range e.Tags {
		if l := len(t.Name); l == 0 || l > 0xFFFF {
			panic("tagcache: invalid tag name length in envelope")
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(t.Name)))
		buf.Write(u2[:])
		buf.WriteString(t.Name)

		binary.BigEndian.PutUint64(u8[:], uint64(t.Version))
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)

	return buf.Bytes()
}

func Decode(b []byte) (Envelope, error) {
	const hdr = 4 + 1 + 1 + 8 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}

	var e Envelope
	e.Permanent = b[5]&flagPermanent != 0

	off := 6

	e.CreatedAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	e.ExpiresIn = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	if n > 0 {
		e.Tags = make([]TagVersion, 0, n)
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Envelope{}, ErrCorrupt
		}
		nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if nlen <= 0 || nlen > len(b)-off {
			return Envelope{}, ErrCorrupt
		}

		nameBytes := b[off : off+nlen]
		off += nlen

		if off+8 > len(b) {
			return Envelope{}, ErrCorrupt
		}
		ver := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8

		e.Tags = append(e.Tags, TagVersion{Name: string(nameBytes), Version: ver})
	}

	if off+4 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Envelope{}, ErrCorrupt
	}

	e.Payload = b[off : off+vlen] // zero-copy slice into b
	return e, nil
}
