// Package photo decodes uploaded images and stores their bytes either
// inline in the database row or in S3-compatible object storage.
package photo

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrEmpty     = errors.New("empty photo payload")
	ErrMalformed = errors.New("malformed photo payload")
	ErrTooLarge  = errors.New("photo exceeds size limit")
)

// Decode turns an uploaded payload into raw bytes. Clients usually send a
// data URL, so everything up to and including the first comma is dropped
// before base64 decoding.
func Decode(payload string, maxBytes int64) ([]byte, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, ErrEmpty
	}
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return nil, ErrTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// ContentType infers the MIME type from the filename extension. The bytes
// themselves are not inspected.
func ContentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Filename returns a safe base name for an uploaded photo. Without a client
// name it falls back to photo_<year>.jpg, or photo.jpg when there is no year.
func Filename(name string, year *int) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		if year != nil {
			return fmt.Sprintf("photo_%d.jpg", *year)
		}
		return "photo.jpg"
	}
	return name
}
