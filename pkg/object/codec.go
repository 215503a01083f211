package object

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
)

// Decode inflates a zlib-compressed loose object and parses its
// "kind len\0content" envelope.
func Decode(raw []byte) (*GitObject, error) {
	data, err := inflate(raw)
	if err != nil {
		return nil, err
	}

	header, content, err := splitObject(data)
	if err != nil {
		return nil, err
	}

	kind, length, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	if uint64(len(content)) != length {
		return nil, fmt.Errorf("decode object: %w (header=%d, actual=%d)", ErrLengthMismatch, length, len(content))
	}

	return &GitObject{Kind: kind, Length: length, Content: content}, nil
}

// Encode builds the envelope for content and zlib-compresses it at the
// default compression level.
func Encode(kind ObjectKind, content []byte) ([]byte, error) {
	return EncodeLevel(kind, content, zlib.DefaultCompression)
}

// EncodeLevel is Encode with an explicit zlib compression level.
func EncodeLevel(kind ObjectKind, content []byte, level int) ([]byte, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	if _, err := fmt.Fprintf(zw, "%s %d\x00", kind, len(content)); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("encode object: header: %w", err)
	}
	if _, err := zw.Write(content); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("encode object: content: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("encode object: close zlib stream: %w", err)
	}
	return buf.Bytes(), nil
}

func inflate(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode object: %w: %v", ErrInvalidZlibData, err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("decode object: %w: %v", ErrInvalidZlibData, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("decode object: %w: %v", ErrInvalidZlibData, err)
	}
	return data, nil
}

// splitObject cuts data at the first NUL. The NUL itself belongs to
// neither half.
func splitObject(data []byte) (string, []byte, error) {
	nulIdx := bytes.IndexByte(data, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("decode object: %w", ErrNullNotFound)
	}
	header := data[:nulIdx]
	if !utf8.Valid(header) {
		return "", nil, fmt.Errorf("decode object: %w", ErrEncoding)
	}
	return string(header), data[nulIdx+1:], nil
}

// parseHeader reads the kind and declared length from the first two
// whitespace-separated tokens. Trailing tokens are ignored.
func parseHeader(header string) (ObjectKind, uint64, error) {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("decode object: %w %q", ErrInvalidHeader, header)
	}

	kind, err := ParseKind(fields[0])
	if err != nil {
		return "", 0, fmt.Errorf("decode object: %w", err)
	}

	length, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("decode object: %w: length %q", ErrInvalidHeader, fields[1])
	}
	return kind, length, nil
}
