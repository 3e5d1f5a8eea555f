package email

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// NamePlaceholder is the token Personalize replaces with the recipient's name.
const NamePlaceholder = "{{name}}"

const headerSeparator = "\r\n\r\n"

// ErrMalformedMessage is returned when an encoded message has no header/body separator.
var ErrMalformedMessage = errors.New("email: malformed message")

// Fields are the structured inputs of a single outgoing message.
type Fields struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	HTMLBody  string
}

// Personalize substitutes every occurrence of NamePlaceholder in template with name.
func Personalize(template, name string) string {
	return strings.ReplaceAll(template, NamePlaceholder, name)
}

// lineBreaks flattens CR and LF so a field value can never start a new header.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Header renders the header block for f, without the trailing blank line. Non-ASCII
// text in the sender name and subject is written as RFC 2047 encoded-words.
func Header(f Fields) string {
	return strings.Join([]string{
		"From: " + formatAddress(f.FromName, f.FromEmail),
		"To: " + formatAddress("", f.To),
		"Subject: " + mime.QEncoding.Encode("utf-8", lineBreaks.Replace(f.Subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}, "\r\n")
}

func formatAddress(name, addr string) string {
	angle := "<" + strings.TrimSpace(lineBreaks.Replace(addr)) + ">"
	name = strings.TrimSpace(lineBreaks.Replace(name))
	if name == "" {
		return angle
	}
	return displayName(name) + " " + angle
}

// displayName renders name as an RFC 5322 quoted-string, or as an encoded-word when
// it holds anything outside printable ASCII.
func displayName(name string) string {
	for _, r := range name {
		if r < ' ' || r > '~' {
			return mime.QEncoding.Encode("utf-8", name)
		}
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range name {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// BuildMessage returns the transport-ready representation of f: the RFC 822 message
// encoded as unpadded URL-safe base64.
func BuildMessage(f Fields) string {
	return base64.RawURLEncoding.EncodeToString([]byte(Header(f) + headerSeparator + f.HTMLBody))
}

// DecodeMessage reverses BuildMessage, returning the header block and the HTML body.
func DecodeMessage(raw string) (header, body string, err error) {
	data, err := DecodeBase64URL(raw)
	if err != nil {
		return "", "", err
	}

	header, body, found := strings.Cut(string(data), headerSeparator)
	if !found {
		return "", "", ErrMalformedMessage
	}
	return header, body, nil
}

// DecodeBase64URL decodes URL-safe base64 with or without padding. Mailbox APIs
// are not consistent about padding, so both forms are accepted.
func DecodeBase64URL(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		// Some payloads use the standard alphabet
		data, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("email: failed to decode base64: %w", err)
		}
	}
	return data, nil
}
