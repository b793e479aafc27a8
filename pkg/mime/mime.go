package mime

import (
	"strings"
)

type Type int32

const (
	TypeUnknown Type = iota - 1

	TypeText
	TypeImage
	TypePath
	TypeBinary
)

const (
	TextUTF8   = "text/plain;charset=utf-8"
	TextPlain  = "text/plain"
	UTF8String = "UTF8_STRING"
	Text       = "TEXT"
	String     = "STRING"

	// PasswordHint is advertised by password managers; its content is
	// "secret" when the selection must be treated as sensitive.
	PasswordHint = "x-kde-passwordManagerHint"
	SecretValue  = "secret"
)

func (t Type) IsText() bool { return t == TypeText }

func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeImage:
		return "image"
	case TypePath:
		return "path"
	case TypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// textPreference lists the text encodings we ask for, best first.
var textPreference = []string{
	TextUTF8,
	TextPlain,
	UTF8String,
	Text,
	String,
}

var pathTypes = map[string]struct{}{
	"text/uri-list":                {},
	"x-special/gnome-copied-files": {},
}

func normalize(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		params := strings.ReplaceAll(ct[i+1:], " ", "")
		ct = strings.TrimSpace(ct[:i])
		if params != "" {
			ct += ";" + params
		}
	}
	return ct
}

func base(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		return ct[:i]
	}
	return ct
}

// AsType classifies a mime type or X11 target name.
func AsType(mimeType string) Type {
	ct := normalize(mimeType)
	b := base(ct)

	if _, ok := pathTypes[b]; ok {
		return TypePath
	}

	switch {
	case ct == "":
		return TypeUnknown
	case strings.HasPrefix(b, "text/"):
		return TypeText
	case b == "utf8_string" || b == "text" || b == "string":
		return TypeText
	case strings.HasPrefix(b, "image/"):
		return TypeImage
	default:
		return TypeBinary
	}
}

// PreferText picks the best text-like representation out of the advertised
// types. It returns the advertised spelling, or "" when nothing is text.
func PreferText(advertised []string) string {
	byNorm := make(map[string]string, len(advertised))
	for _, m := range advertised {
		n := normalize(m)
		if _, ok := byNorm[n]; !ok {
			byNorm[n] = m
		}
	}

	for _, want := range textPreference {
		if m, ok := byNorm[normalize(want)]; ok {
			return m
		}
	}

	var fallback string
	for _, m := range advertised {
		if !AsType(m).IsText() || !strings.HasPrefix(normalize(m), "text/") {
			continue
		}
		if fallback == "" || m < fallback {
			fallback = m
		}
	}

	return fallback
}

// TextTypes is what we advertise when publishing text.
func TextTypes() []string {
	out := make([]string, len(textPreference))
	copy(out, textPreference)
	return out
}
