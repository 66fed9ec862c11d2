package pointledger

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyCodec maps plaintext keys to the identifiers kept in the stores.
// Decode(Encode(k)) must return k.
type KeyCodec interface {
	Encode(key string) string
	Decode(stored string) string
}

// CodecFuncs adapts a pair of plain functions to KeyCodec
type CodecFuncs struct {
	EncodeFunc func(string) string
	DecodeFunc func(string) string
}

// Encode implements KeyCodec
func (c CodecFuncs) Encode(key string) string { return c.EncodeFunc(key) }

// Decode implements KeyCodec
func (c CodecFuncs) Decode(stored string) string { return c.DecodeFunc(stored) }

// IdentityCodec stores keys as given
func IdentityCodec() KeyCodec {
	same := func(s string) string { return s }
	return CodecFuncs{EncodeFunc: same, DecodeFunc: same}
}

// ReverseCodec stores keys with their runes reversed
func ReverseCodec() KeyCodec {
	return CodecFuncs{EncodeFunc: reverse, DecodeFunc: reverse}
}

// HexCodec stores keys hex encoded. Undecodable input is returned unchanged.
func HexCodec() KeyCodec {
	return CodecFuncs{
		EncodeFunc: func(s string) string { return hex.EncodeToString([]byte(s)) },
		DecodeFunc: func(s string) string {
			b, err := hex.DecodeString(s)
			if err != nil {
				return s
			}
			return string(b)
		},
	}
}

// Base64Codec stores keys as unpadded URL-safe base64. Undecodable input
// is returned unchanged.
func Base64Codec() KeyCodec {
	enc := base64.RawURLEncoding
	return CodecFuncs{
		EncodeFunc: func(s string) string { return enc.EncodeToString([]byte(s)) },
		DecodeFunc: func(s string) string {
			b, err := enc.DecodeString(s)
			if err != nil {
				return s
			}
			return string(b)
		},
	}
}

// ParseCodec returns the named built-in codec.
// Supported names: "identity" (or ""), "reverse", "hex", "base64".
func ParseCodec(name string) (KeyCodec, error) {
	switch strings.ToLower(name) {
	case "", "identity":
		return IdentityCodec(), nil
	case "reverse":
		return ReverseCodec(), nil
	case "hex":
		return HexCodec(), nil
	case "base64":
		return Base64Codec(), nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, name)
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
