// Package dataurl converts attachments to and from base64 data URIs.
package dataurl

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

// DecodeFailed is returned by DecodeToText when the payload is not valid
// base64 or does not decode to UTF-8 text.
const DecodeFailed = "[Could not decode file content]"

// PreviewLimit is the number of characters kept by TextPreview.
const PreviewLimit = 2000

var ErrMalformed = errors.New("dataurl: malformed data URI")

type Kind int

const (
	KindBinary Kind = iota
	KindImage
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindText:
		return "text"
	default:
		return "binary"
	}
}

// Classify decides how an attachment is presented to the model.
func Classify(mime string) Kind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "text/"):
		return KindText
	default:
		return KindBinary
	}
}

func Encode(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Parse splits a base64 data URI into its MIME type and decoded bytes.
func Parse(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrMalformed
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrMalformed
	}

	mime, params, _ := strings.Cut(header, ";")
	if !strings.Contains(";"+params, ";base64") {
		return "", nil, ErrMalformed
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errors.Join(ErrMalformed, err)
	}
	return mime, data, nil
}

// DecodeToText returns the payload of uri as text, or DecodeFailed.
// A URI without a header is treated as a bare base64 payload.
func DecodeToText(uri string) string {
	payload := uri
	if _, after, ok := strings.Cut(uri, ","); ok {
		payload = after
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || !utf8.Valid(data) {
		return DecodeFailed
	}
	return string(data)
}

// TextPreview truncates text to the first PreviewLimit characters.
func TextPreview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLimit {
		return text
	}
	n := 0
	for i := range text {
		if n == PreviewLimit {
			return text[:i]
		}
		n++
	}
	return text
}
