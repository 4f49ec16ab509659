// Package gzip implements RFC 1952 gzip members on top of package deflate.
//
// Compress writes one member. DecompressMembers decodes every member of a
// multi-member file and checks each trailer; Decompress concatenates their data.
package gzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/woozymasta/deflate"
)

const (
	id1           = 0x1f
	id2           = 0x8b
	methodDeflate = 8

	flagText     = 1 << 0
	flagHCRC     = 1 << 1
	flagExtra    = 1 << 2
	flagName     = 1 << 3
	flagComment  = 1 << 4
	flagReserved = 0xe0

	headerSize  = 10
	trailerSize = 8

	// MaxStringField is the longest Name or Comment accepted by Validate, terminator excluded.
	MaxStringField = 255
	// MaxExtraSize is the largest Extra field; its length is a 16-bit value.
	MaxExtraSize = math.MaxUint16
)

// Operating system identifiers for Header.OS.
const (
	OSFAT     byte = 0
	OSUnix    byte = 3
	OSMacOS   byte = 7
	OSNTFS    byte = 11
	OSUnknown byte = 255
)

// Package errors.
var (
	ErrHeader      = errors.New("invalid gzip header")
	ErrHeaderField = errors.New("invalid gzip header field")
	ErrChecksum    = errors.New("gzip crc-32 mismatch")
	ErrSize        = errors.New("gzip size mismatch")
)

// Header holds the optional gzip member metadata.
type Header struct {
	Name    string    // Original file name, without NUL bytes.
	Comment string    // Free text comment, without NUL bytes.
	ModTime time.Time // Zero means no timestamp.
	OS      byte      // One of the OS* constants.
	Extra   []byte    // Raw FEXTRA payload.
	Text    bool      // FTEXT: the data is probably ASCII text.
}

// Validate reports every field that cannot be written as a gzip header.
func (h *Header) Validate() error {
	var result *multierror.Error

	checkString := func(field, v string) {
		if len(v) > MaxStringField {
			result = multierror.Append(result, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrHeaderField, field, len(v), MaxStringField))
		}
		if strings.IndexByte(v, 0) >= 0 {
			result = multierror.Append(result, fmt.Errorf("%w: %s contains a NUL byte", ErrHeaderField, field))
		}
	}
	checkString("name", h.Name)
	checkString("comment", h.Comment)

	if len(h.Extra) > MaxExtraSize {
		result = multierror.Append(result, fmt.Errorf("%w: extra is %d bytes, limit %d", ErrHeaderField, len(h.Extra), MaxExtraSize))
	}
	if !h.ModTime.IsZero() {
		if sec := h.ModTime.Unix(); sec < 0 || sec > math.MaxUint32 {
			result = multierror.Append(result, fmt.Errorf("%w: modification time %s outside the 32-bit unix range", ErrHeaderField, h.ModTime.UTC()))
		}
	}

	return result.ErrorOrNil()
}

// appendHeader appends the member header for h.
func appendHeader(dst []byte, h *Header, xfl byte) []byte {
	var flags byte
	if h.Text {
		flags |= flagText
	}
	if len(h.Extra) > 0 {
		flags |= flagExtra
	}
	if h.Name != "" {
		flags |= flagName
	}
	if h.Comment != "" {
		flags |= flagComment
	}

	var mtime uint32
	if !h.ModTime.IsZero() {
		mtime = uint32(h.ModTime.Unix()) // #nosec G115 -- checked by Validate
	}

	dst = append(dst, id1, id2, methodDeflate, flags)
	dst = binary.LittleEndian.AppendUint32(dst, mtime)
	dst = append(dst, xfl, h.OS)

	if len(h.Extra) > 0 {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(h.Extra))) // #nosec G115 -- checked by Validate
		dst = append(dst, h.Extra...)
	}
	if h.Name != "" {
		dst = append(append(dst, h.Name...), 0)
	}
	if h.Comment != "" {
		dst = append(append(dst, h.Comment...), 0)
	}

	return dst
}

// Compress writes src as a single gzip member. Header nil means no metadata
// and OSUnknown; options nil means deflate.DefaultCompressOptions().
func Compress(src []byte, hdr *Header, opts *deflate.CompressOptions) ([]byte, error) {
	if hdr == nil {
		hdr = &Header{OS: OSUnknown}
	}
	if err := hdr.Validate(); err != nil {
		return nil, err
	}

	o := deflate.DefaultCompressOptions()
	if opts != nil {
		*o = *opts
	}

	// XFL 4 marks the fastest method, used here for stored data.
	var xfl byte
	if o.BlockType == deflate.BlockStored {
		xfl = 4
	}

	size := headerSize + len(hdr.Name) + len(hdr.Comment) + len(hdr.Extra) + 4
	head := appendHeader(make([]byte, 0, size+len(src)/2+trailerSize), hdr, xfl)
	o.Output = head
	o.OutputOffset = len(head)

	out, err := deflate.Compress(src, o)
	if err != nil {
		return nil, err
	}

	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(src))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(src))) // #nosec G115 -- ISIZE is the size modulo 2^32

	return out, nil
}

// parseHeader reads a member header and returns it with its length in bytes.
func parseHeader(src []byte) (Header, int, error) {
	var h Header
	if len(src) < headerSize {
		return h, 0, fmt.Errorf("%w: %d bytes, need %d", ErrHeader, len(src), headerSize)
	}
	if src[0] != id1 || src[1] != id2 {
		return h, 0, fmt.Errorf("%w: bad magic %#02x %#02x", ErrHeader, src[0], src[1])
	}
	if src[2] != methodDeflate {
		return h, 0, fmt.Errorf("%w: compression method %d", ErrHeader, src[2])
	}
	flags := src[3]
	if flags&flagReserved != 0 {
		return h, 0, fmt.Errorf("%w: reserved flags %#02x", ErrHeader, flags&flagReserved)
	}
	if mtime := binary.LittleEndian.Uint32(src[4:8]); mtime != 0 {
		h.ModTime = time.Unix(int64(mtime), 0)
	}
	h.OS = src[9]
	h.Text = flags&flagText != 0

	p := headerSize
	if flags&flagExtra != 0 {
		if len(src) < p+2 {
			return h, 0, fmt.Errorf("%w: truncated extra length", ErrHeader)
		}
		n := int(binary.LittleEndian.Uint16(src[p:]))
		p += 2
		if len(src) < p+n {
			return h, 0, fmt.Errorf("%w: truncated extra field", ErrHeader)
		}
		h.Extra = append([]byte(nil), src[p:p+n]...)
		p += n
	}

	readString := func(field string) (string, error) {
		end := bytes.IndexByte(src[p:], 0)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated %s", ErrHeader, field)
		}
		s := string(src[p : p+end])
		p += end + 1
		return s, nil
	}
	var err error
	if flags&flagName != 0 {
		if h.Name, err = readString("name"); err != nil {
			return h, 0, err
		}
	}
	if flags&flagComment != 0 {
		if h.Comment, err = readString("comment"); err != nil {
			return h, 0, err
		}
	}

	if flags&flagHCRC != 0 {
		if len(src) < p+2 {
			return h, 0, fmt.Errorf("%w: truncated header crc", ErrHeader)
		}
		want := binary.LittleEndian.Uint16(src[p:])
		if got := uint16(crc32.ChecksumIEEE(src[:p])); got != want { // #nosec G115 -- low 16 bits by definition
			return h, 0, fmt.Errorf("%w: header crc %#04x, want %#04x", ErrChecksum, got, want)
		}
		p += 2
	}

	return h, p, nil
}

// Member is one decoded gzip member.
type Member struct {
	Header Header
	Data   []byte
}

// DecompressMembers decodes every member in src. Options nil means
// deflate.DefaultDecompressOptions(); StartOffset is ignored.
func DecompressMembers(src []byte, opts *deflate.DecompressOptions) ([]Member, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrHeader)
	}

	o := deflate.DefaultDecompressOptions()
	if opts != nil {
		*o = *opts
	}
	// The returned data must not alias a buffer reused by the next member.
	o.Resize = true

	var members []Member
	for off := 0; off < len(src); {
		idx := len(members)
		hdr, n, err := parseHeader(src[off:])
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", idx, err)
		}

		o.StartOffset = off + n
		data, consumed, err := deflate.DecompressPrefix(src, o)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", idx, err)
		}
		off = o.StartOffset + consumed

		if len(src)-off < trailerSize {
			return nil, fmt.Errorf("member %d: %w: truncated trailer", idx, deflate.ErrUnexpectedEOF)
		}
		crc := binary.LittleEndian.Uint32(src[off:])
		size := binary.LittleEndian.Uint32(src[off+4:])
		off += trailerSize

		if got := crc32.ChecksumIEEE(data); got != crc {
			return nil, fmt.Errorf("member %d: %w: got %#08x, want %#08x", idx, ErrChecksum, got, crc)
		}
		if got := uint32(len(data)); got != size { // #nosec G115 -- ISIZE is the size modulo 2^32
			return nil, fmt.Errorf("member %d: %w: got %d, want %d", idx, ErrSize, got, size)
		}

		members = append(members, Member{Header: hdr, Data: data})
	}

	return members, nil
}

// Decompress decodes all members in src and returns their concatenated data.
func Decompress(src []byte, opts *deflate.DecompressOptions) ([]byte, error) {
	members, err := DecompressMembers(src, opts)
	if err != nil {
		return nil, err
	}
	if len(members) == 1 {
		return members[0].Data, nil
	}

	var size int
	for _, m := range members {
		size += len(m.Data)
	}
	out := make([]byte, 0, size)
	for _, m := range members {
		out = append(out, m.Data...)
	}

	return out, nil
}
