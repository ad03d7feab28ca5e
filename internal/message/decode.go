// Package message turns cached envelope and body-structure data into text a
// terminal can display.
package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
)

var (
	ErrNoPlainTextPart     = errors.New("message has no text/plain part")
	ErrUnsupportedEncoding = errors.New("unsupported transfer encoding")
)

// PartFetcher retrieves the raw bytes of one body part, addressed by its
// part path within the MIME tree.
type PartFetcher interface {
	FetchBodyPart(id uint32, path []int) ([]byte, error)
}

// ExtractPlainText locates the displayable text/plain part of a message and
// reverses its transfer encoding and declared charset. CRLF line endings are
// collapsed to LF for terminal output.
//
// Multipart messages are scanned one level deep only: the first direct
// text/plain child wins and nested multiparts are not descended into.
func ExtractPlainText(f PartFetcher, id uint32, structure *imap.BodyStructure) (string, error) {
	part, path, err := findPlainPart(structure)
	if err != nil {
		return "", err
	}

	raw, err := f.FetchBodyPart(id, path)
	if err != nil {
		return "", err
	}

	decoded, err := decodeTransfer(raw, part.Encoding)
	if err != nil {
		return "", err
	}

	text, err := decodeCharset(decoded, part.Params)
	if err != nil {
		return "", err
	}

	return strings.ReplaceAll(text, "\r\n", "\n"), nil
}

func findPlainPart(bs *imap.BodyStructure) (*imap.BodyStructure, []int, error) {
	if bs == nil {
		return nil, nil, ErrNoPlainTextPart
	}
	if isPlainText(bs) {
		// Non-multipart message: the body is part 1.
		return bs, []int{1}, nil
	}
	if strings.EqualFold(bs.MIMEType, "multipart") {
		for i, child := range bs.Parts {
			if isPlainText(child) {
				return child, []int{i + 1}, nil
			}
		}
	}
	return nil, nil, ErrNoPlainTextPart
}

func isPlainText(bs *imap.BodyStructure) bool {
	return bs != nil &&
		strings.EqualFold(bs.MIMEType, "text") &&
		strings.EqualFold(bs.MIMESubType, "plain")
}

func decodeTransfer(raw []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "7bit", "8bit":
		return raw, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(raw)))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

func decodeCharset(data []byte, params map[string]string) (string, error) {
	name := ""
	for k, v := range params {
		if strings.EqualFold(k, "charset") {
			name = v
			break
		}
	}
	if name == "" {
		return string(data), nil
	}

	r, err := charset.Reader(name, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("charset %q: %w", name, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("charset %q: %w", name, err)
	}
	return string(decoded), nil
}
