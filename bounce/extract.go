package bounce

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Charsets seen in bounces from older MTAs that go-message does not map by default.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

const (
	ContentTypePlain          = "text/plain"
	ContentTypeDeliveryStatus = "message/delivery-status"
)

// Extractor turns a raw message into the text blob the Parser works on.
type Extractor struct {
	contentTypes map[string]struct{}
}

// NewExtractor returns an Extractor collecting the given part content types.
// Without arguments only text/plain parts are collected.
func NewExtractor(contentTypes ...string) *Extractor {
	if len(contentTypes) == 0 {
		contentTypes = []string{ContentTypePlain}
	}
	types := make(map[string]struct{}, len(contentTypes))
	for _, ct := range contentTypes {
		types[strings.ToLower(strings.TrimSpace(ct))] = struct{}{}
	}
	return &Extractor{contentTypes: types}
}

// ContentTypes returns the collected part content types in sorted order.
func (e *Extractor) ContentTypes() []string {
	types := make([]string, 0, len(e.contentTypes))
	for ct := range e.contentTypes {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

var defaultExtractor = NewExtractor()

// ExtractText extracts the text/plain content of raw with the default Extractor.
func ExtractText(raw []byte) (string, error) {
	return defaultExtractor.Extract(raw)
}

// Extract returns the decoded text of raw. Multipart messages contribute every
// matching part, each followed by a newline. Nested multiparts and attached
// messages (message/rfc822, message/global) are flattened into the same walk. A
// single-part message contributes its whole payload regardless of content type.
//
// When the top-level header cannot be parsed, everything after the first blank
// line is used as the body. On any failure the text gathered so far is returned
// along with a *MessageProcessingError.
func (e *Extractor) Extract(raw []byte) (string, error) {
	var sb strings.Builder

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !recoverable(err) {
		sb.WriteString(decode(rawBody(raw)))
		return finish(&sb), &MessageProcessingError{Op: "parse", Err: err}
	}

	mediaType, _, _ := entity.Header.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") && !isAttachedMessage(mediaType) {
		body, err := io.ReadAll(entity.Body)
		sb.WriteString(decode(body))
		if err != nil {
			return finish(&sb), &MessageProcessingError{Op: "decode", Err: err}
		}
		return finish(&sb), nil
	}

	if err := e.walk(entity, &sb, 0); err != nil {
		return finish(&sb), &MessageProcessingError{Op: "decode", Err: err}
	}
	return finish(&sb), nil
}

// maxDepth bounds message/rfc822 and multipart nesting.
const maxDepth = 16

func (e *Extractor) walk(entity *message.Entity, sb *strings.Builder, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("parts nested deeper than %d levels", maxDepth)
	}

	mediaType, _, _ := entity.Header.ContentType()
	if isAttachedMessage(mediaType) {
		inner, err := message.Read(entity.Body)
		if err != nil && !recoverable(err) {
			return fmt.Errorf("attached message: %w", err)
		}
		return e.walk(inner, sb, depth+1)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !recoverable(err) {
				return err
			}
			if err := e.walk(part, sb, depth+1); err != nil {
				return err
			}
		}
	}

	if !e.wants(entity) {
		return nil
	}
	body, err := io.ReadAll(entity.Body)
	if len(body) > 0 {
		sb.WriteString(decode(body))
		sb.WriteByte('\n')
	}
	return err
}

func isAttachedMessage(mediaType string) bool {
	return mediaType == "message/rfc822" || mediaType == "message/global"
}

// rawBody returns what follows the first blank line, or raw when there is none.
func rawBody(raw []byte) []byte {
	end, sepLen := -1, 0
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if i := bytes.Index(raw, sep); i >= 0 && (end < 0 || i < end) {
			end, sepLen = i, len(sep)
		}
	}
	if end < 0 {
		return raw
	}
	return raw[end+sepLen:]
}

func (e *Extractor) wants(part *message.Entity) bool {
	mediaType, _, err := part.Header.ContentType()
	if err != nil || mediaType == "" {
		// RFC 2045 default for parts without a usable Content-Type.
		mediaType = ContentTypePlain
	}
	_, ok := e.contentTypes[mediaType]
	return ok
}

// recoverable reports errors after which go-message still hands out a usable
// entity whose body is left undecoded.
func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// decode drops invalid UTF-8 sequences instead of failing.
func decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(b), "")
}

func finish(sb *strings.Builder) string {
	return strings.ReplaceAll(sb.String(), "\r\n", "\n")
}
