package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Ruby Marshal type tags.
const (
	tagNil        = '0'
	tagTrue       = 'T'
	tagFalse      = 'F'
	tagFixnum     = 'i'
	tagSymbol     = ':'
	tagSymlink    = ';'
	tagLink       = '@'
	tagIvar       = 'I'
	tagExtended   = 'e'
	tagUserClass  = 'C'
	tagString     = '"'
	tagArray      = '['
	tagHash       = '{'
	tagHashDef    = '}'
	tagFloat      = 'f'
	tagBignum     = 'l'
	tagRegexp     = '/'
	tagObject     = 'o'
	tagStruct     = 'S'
	tagUserDef    = 'u'
	tagUserMarsh  = 'U'
	tagClass      = 'c'
	tagModule     = 'm'
	tagOldModule  = 'M'
	tagData       = 'd'
	marshalMajor  = 4
	marshalMinor  = 8
	maxByteLength = 1 << 30
	versionClass  = "Gem::Version"
	platformClass = "Gem::Platform"
)

// ErrMarshal is returned for payloads that are not valid Ruby Marshal 4.8
// or that do not hold an index listing.
var ErrMarshal = errors.New("invalid marshal data")

// Symbol is a decoded Ruby symbol.
type Symbol string

// Object is a decoded Ruby object that has no direct Go counterpart.
// Data holds the payload of user-marshalled objects; Fields holds instance
// variables of plain objects and structs.
type Object struct {
	Class  string
	Data   any
	Fields map[string]any
}

// Decode reads an uncompressed index listing.
func Decode(r io.Reader) ([]Entry, error) {
	v, err := Unmarshal(r)
	if err != nil {
		return nil, err
	}
	return entriesFrom(v)
}

// Unmarshal decodes a single Ruby Marshal 4.8 value. Strings decode to
// string, integers to int64 (or *big.Int when they overflow), arrays to
// []any, hashes to [][2]any and everything else to *Object or Symbol.
func Unmarshal(r io.Reader) (any, error) {
	d := &decoder{r: bufio.NewReader(r)}
	major, err := d.byte()
	if err != nil {
		return nil, err
	}
	minor, err := d.byte()
	if err != nil {
		return nil, err
	}
	if major != marshalMajor || minor > marshalMinor {
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrMarshal, major, minor)
	}
	return d.value()
}

type decoder struct {
	r       *bufio.Reader
	symbols []string
	objects []any
}

func (d *decoder) byte() (byte, error) {
	b, err := d.r.ReadByte()
	if err == io.EOF {
		return 0, fmt.Errorf("%w: unexpected end of data", ErrMarshal)
	}
	return b, err
}

// long reads Ruby's packed integer encoding.
func (d *decoder) long() (int64, error) {
	b, err := d.byte()
	if err != nil {
		return 0, err
	}
	c := int64(int8(b))
	switch {
	case c == 0:
		return 0, nil
	case c > 4:
		return c - 5, nil
	case c < -4:
		return c + 5, nil
	case c > 0:
		var x int64
		for i := range c {
			b, err := d.byte()
			if err != nil {
				return 0, err
			}
			x |= int64(b) << (8 * i)
		}
		return x, nil
	default:
		x := int64(-1)
		for i := range -c {
			b, err := d.byte()
			if err != nil {
				return 0, err
			}
			x &^= 0xff << (8 * i)
			x |= int64(b) << (8 * i)
		}
		return x, nil
	}
}

func (d *decoder) length() (int, error) {
	n, err := d.long()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxByteLength {
		return 0, fmt.Errorf("%w: bad length %d", ErrMarshal, n)
	}
	return int(n), nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	return d.read(n)
}

// read returns the next n bytes. The buffer grows with the data actually
// received, so a corrupt length prefix cannot force a large allocation.
func (d *decoder) read(n int) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: short read: %v", ErrMarshal, err)
	}
	return buf.Bytes(), nil
}

// symbol reads a symbol or symlink, as used for class names and ivar keys.
func (d *decoder) symbol() (string, error) {
	tag, err := d.byte()
	if err != nil {
		return "", err
	}
	switch tag {
	case tagSymbol:
		return d.newSymbol()
	case tagSymlink:
		return d.symlink()
	case tagIvar:
		// Symbols with a non-ASCII encoding carry an ivar wrapper.
		s, err := d.symbol()
		if err != nil {
			return "", err
		}
		if err := d.skipIvars(); err != nil {
			return "", err
		}
		return s, nil
	}
	return "", fmt.Errorf("%w: expected symbol, got %q", ErrMarshal, tag)
}

func (d *decoder) newSymbol() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	s := string(b)
	d.symbols = append(d.symbols, s)
	return s, nil
}

func (d *decoder) symlink() (string, error) {
	idx, err := d.long()
	if err != nil {
		return "", err
	}
	if idx < 0 || int(idx) >= len(d.symbols) {
		return "", fmt.Errorf("%w: symlink %d out of range", ErrMarshal, idx)
	}
	return d.symbols[idx], nil
}

// reserve registers a slot in the object table before the object's body is
// read, matching the order the encoder assigns link indexes.
func (d *decoder) reserve() int {
	d.objects = append(d.objects, nil)
	return len(d.objects) - 1
}

func (d *decoder) register(v any) any {
	d.objects = append(d.objects, v)
	return v
}

func (d *decoder) ivars() (map[string]any, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, min(n, 64))
	for range n {
		k, err := d.symbol()
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		fields[k] = v
	}
	return fields, nil
}

func (d *decoder) skipIvars() error {
	_, err := d.ivars()
	return err
}

func (d *decoder) value() (any, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagNil:
		return nil, nil
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagFixnum:
		return d.long()
	case tagSymbol:
		s, err := d.newSymbol()
		return Symbol(s), err
	case tagSymlink:
		s, err := d.symlink()
		return Symbol(s), err
	case tagLink:
		idx, err := d.long()
		if err != nil {
			return nil, err
		}
		if idx < 0 || int(idx) >= len(d.objects) {
			return nil, fmt.Errorf("%w: object link %d out of range", ErrMarshal, idx)
		}
		return d.objects[idx], nil
	case tagIvar:
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		// Encoding ivars (:E, :encoding) are irrelevant for index data.
		return v, d.skipIvars()
	case tagExtended, tagUserClass:
		if _, err := d.symbol(); err != nil {
			return nil, err
		}
		return d.value()
	case tagString:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return d.register(string(b)), nil
	case tagFloat:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		f, err := parseFloat(string(b))
		if err != nil {
			return nil, err
		}
		return d.register(f), nil
	case tagBignum:
		return d.bignum()
	case tagRegexp:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		if _, err := d.byte(); err != nil {
			return nil, err
		}
		return d.register(&Object{Class: "Regexp", Data: string(b)}), nil
	case tagClass, tagModule, tagOldModule:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return d.register(Symbol(b)), nil
	case tagArray:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		idx := d.reserve()
		arr := make([]any, 0, min(n, 1<<16))
		for range n {
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		d.objects[idx] = arr
		return arr, nil
	case tagHash, tagHashDef:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		idx := d.reserve()
		pairs := make([][2]any, 0, min(n, 1<<16))
		for range n {
			k, err := d.value()
			if err != nil {
				return nil, err
			}
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, [2]any{k, v})
		}
		if tag == tagHashDef {
			if _, err := d.value(); err != nil {
				return nil, err
			}
		}
		d.objects[idx] = pairs
		return pairs, nil
	case tagUserMarsh:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		obj := &Object{Class: class}
		d.register(obj)
		if obj.Data, err = d.value(); err != nil {
			return nil, err
		}
		return obj, nil
	case tagUserDef:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return d.register(&Object{Class: class, Data: string(b)}), nil
	case tagObject, tagStruct:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		obj := &Object{Class: class}
		d.register(obj)
		if obj.Fields, err = d.ivars(); err != nil {
			return nil, err
		}
		return obj, nil
	case tagData:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrMarshal, tag)
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMarshal, tag)
}

func (d *decoder) bignum() (any, error) {
	sign, err := d.byte()
	if err != nil {
		return nil, err
	}
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	if n > maxByteLength/2 {
		return nil, fmt.Errorf("%w: bignum too large", ErrMarshal)
	}
	buf, err := d.read(2 * n)
	if err != nil {
		return nil, err
	}
	// Little-endian on the wire, big-endian for big.Int.
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	x := new(big.Int).SetBytes(buf)
	if sign == '-' {
		x.Neg(x)
	}
	if x.IsInt64() {
		return d.register(x.Int64()), nil
	}
	return d.register(x), nil
}

func parseFloat(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	// Old Ruby versions append mantissa bytes after a NUL.
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad float %q", ErrMarshal, s)
	}
	return f, nil
}

// entriesFrom converts a decoded listing into entries.
func entriesFrom(v any) ([]Entry, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: listing is %T, want array", ErrMarshal, v)
	}
	entries := make([]Entry, 0, len(list))
	for i, item := range list {
		tuple, ok := item.([]any)
		if !ok || len(tuple) < 3 {
			return nil, fmt.Errorf("%w: entry %d is not a [name, version, platform] tuple", ErrMarshal, i)
		}
		name, ok := tuple[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d has name of type %T", ErrMarshal, i, tuple[0])
		}
		version, err := versionString(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, name, err)
		}
		platform, err := platformString(tuple[2])
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, name, err)
		}
		entries = append(entries, Entry{Name: name, Version: version, Platform: platform})
	}
	return entries, nil
}

func versionString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case *Object:
		if v.Class != versionClass {
			break
		}
		// Gem::Version#marshal_dump is [version_string].
		if arr, ok := v.Data.([]any); ok && len(arr) > 0 {
			if s, ok := arr[0].(string); ok {
				return s, nil
			}
		}
		if s, ok := v.Fields["@version"].(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unexpected version value %T", ErrMarshal, v)
}

func platformString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return RubyPlatform, nil
	case string:
		return v, nil
	case *Object:
		if v.Class != platformClass {
			break
		}
		var parts []string
		for _, f := range []string{"@cpu", "@os", "@version"} {
			if s, ok := v.Fields[f].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "-"), nil
	}
	return "", fmt.Errorf("%w: unexpected platform value %T", ErrMarshal, v)
}

// Encode writes entries as a Ruby Marshal 4.8 listing, the inverse of
// [Decode]. Versions are written as user-marshalled Gem::Version objects and
// strings carry the UTF-8 encoding flag, as RubyGems does.
func Encode(entries []Entry) []byte {
	e := &encoder{symbols: make(map[string]int)}
	e.buf.WriteByte(marshalMajor)
	e.buf.WriteByte(marshalMinor)
	e.buf.WriteByte(tagArray)
	e.long(int64(len(entries)))
	for _, en := range entries {
		e.buf.WriteByte(tagArray)
		e.long(3)
		e.string(en.Name)
		e.buf.WriteByte(tagUserMarsh)
		e.symbol(versionClass)
		e.buf.WriteByte(tagArray)
		e.long(1)
		e.string(en.Version)
		platform := en.Platform
		if platform == "" {
			platform = RubyPlatform
		}
		e.string(platform)
	}
	return e.buf.Bytes()
}

type encoder struct {
	buf     bytes.Buffer
	symbols map[string]int
}

func (e *encoder) long(x int64) {
	switch {
	case x == 0:
		e.buf.WriteByte(0)
	case x > 0 && x < 123:
		e.buf.WriteByte(byte(x + 5))
	case x < 0 && x > -124:
		e.buf.WriteByte(byte(int8(x - 5)))
	default:
		var tmp [8]byte
		n := 0
		for n < 8 {
			tmp[n] = byte(x)
			x >>= 8
			n++
			if x == 0 || x == -1 {
				break
			}
		}
		if x < 0 {
			e.buf.WriteByte(byte(int8(-n)))
		} else {
			e.buf.WriteByte(byte(n))
		}
		e.buf.Write(tmp[:n])
	}
}

func (e *encoder) symbol(s string) {
	if idx, ok := e.symbols[s]; ok {
		e.buf.WriteByte(tagSymlink)
		e.long(int64(idx))
		return
	}
	e.symbols[s] = len(e.symbols)
	e.buf.WriteByte(tagSymbol)
	e.long(int64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) string(s string) {
	e.buf.WriteByte(tagIvar)
	e.buf.WriteByte(tagString)
	e.long(int64(len(s)))
	e.buf.WriteString(s)
	e.long(1)
	e.symbol("E")
	e.buf.WriteByte(tagTrue)
}
