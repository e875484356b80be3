package chatlog

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// Role identifies who produced a message.
type Role int

const (
	RoleUser Role = iota + 1
	RoleResponder
	RoleTechnician
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleResponder:
		return "responder"
	case RoleTechnician:
		return "technician"
	}
	return "unknown"
}

// Tag returns the literal written inside the bracketed entry header. The
// literals are part of the storage format and must not change.
func (r Role) Tag() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleResponder:
		return "RESPONDER"
	case RoleTechnician:
		return "TECHNICIAN"
	}
	return ""
}

func roleFromTag(tag string) (Role, bool) {
	switch tag {
	case "USER":
		return RoleUser, true
	case "RESPONDER":
		return RoleResponder, true
	case "TECHNICIAN":
		return RoleTechnician, true
	}
	return 0, false
}

// Message is ephemeral: it is reconstructed from a log blob on every decode
// and never stored as a row. Timestamps carry minute precision only;
// sub-minute ordering is whatever order the blob (or slice) holds.
type Message struct {
	Sender    Role
	Timestamp time.Time
	Text      string
}

// TimeLayout is the entry header timestamp format: DD/MM/YYYY HH:MM, 24h,
// zero-padded.
const TimeLayout = "02/01/2006 15:04"

// headerRE matches an entry header at the start of a segment:
// "[TAG - DD/MM/YYYY HH:MM] ". Tag validity and timestamp range are checked
// separately so a bad entry is skipped with a warning instead of being
// swallowed into the previous entry's text.
var headerRE = regexp.MustCompile(`^\[([A-Z]+) - (\d{2}/\d{2}/\d{4} \d{2}:\d{2})\] `)

// Separator joins consecutive entries in a blob.
const Separator = "\n\n"

// Encode renders messages into a single blob. Decode(Encode(m), ...) yields
// m back for any message list with minute-granularity timestamps; messages
// sharing a minute keep their slice order.
func Encode(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(FormatEntry(m))
	}
	return b.String()
}

// FormatEntry renders one message as a tagged entry without a separator.
func FormatEntry(m Message) string {
	return fmt.Sprintf("[%s - %s] %s", m.Sender.Tag(), m.Timestamp.Format(TimeLayout), m.Text)
}

// Append concatenates a new entry onto an existing blob. The blob is
// append-only: prior entries are never rewritten.
func Append(blob string, m Message) string {
	if blob == "" {
		return FormatEntry(m)
	}
	return blob + Separator + FormatEntry(m)
}

// Decode parses a blob into messages. An entry starts with a bracketed
// header at the beginning of the blob or immediately after a blank line; its
// text runs until the next such header or the end of the blob.
//
// A blob with no header anywhere is a legacy single message: the whole text
// is one entry whose sender and timestamp come from the caller (typically
// the conversation's last-known update time), not from the content. The same
// fallback covers untagged text preceding the first header in a blob that
// was appended to after the legacy era.
//
// Entries with an unknown tag or an unparsable timestamp are dropped with a
// decode warning; they are never surfaced to the caller. An empty blob
// decodes to no messages.
func Decode(blob string, fallbackRole Role, fallbackTime time.Time) []Message {
	if blob == "" {
		return nil
	}

	segments := splitEntries(blob)
	if len(segments) == 1 && !headerRE.MatchString(segments[0]) {
		return []Message{{Sender: fallbackRole, Timestamp: fallbackTime, Text: blob}}
	}

	var out []Message
	for i, seg := range segments {
		loc := headerRE.FindStringSubmatch(seg)
		if loc == nil {
			if i == 0 {
				// Legacy head: text written before tagged entries existed.
				out = append(out, Message{Sender: fallbackRole, Timestamp: fallbackTime, Text: strings.TrimRight(seg, "\n")})
				continue
			}
			// Cannot happen: splitEntries only cuts in front of headers.
			log.Printf("chatlog: decode warning: segment without header skipped")
			continue
		}
		role, ok := roleFromTag(loc[1])
		if !ok {
			log.Printf("chatlog: decode warning: unknown tag %q, entry skipped", loc[1])
			continue
		}
		ts, err := time.Parse(TimeLayout, loc[2])
		if err != nil {
			log.Printf("chatlog: decode warning: bad timestamp %q, entry skipped", loc[2])
			continue
		}
		out = append(out, Message{Sender: role, Timestamp: ts, Text: seg[len(loc[0]):]})
	}
	return out
}

// splitEntries cuts the blob in front of every blank-line-prefixed header.
// Blank lines inside an entry's text survive as long as they are not
// immediately followed by a valid header.
func splitEntries(blob string) []string {
	var segments []string
	start := 0
	for i := 0; i+len(Separator) < len(blob); {
		j := strings.Index(blob[i:], Separator)
		if j < 0 {
			break
		}
		cut := i + j + len(Separator)
		if headerRE.MatchString(blob[cut:]) {
			segments = append(segments, blob[start:i+j])
			start = cut
			i = cut
			continue
		}
		// Advance one byte, not past the whole match: entry text ending in
		// newlines produces a run of 3+ newlines before the next header, and
		// only the last blank-line window of the run precedes the bracket.
		i = i + j + 1
	}
	return append(segments, blob[start:])
}
