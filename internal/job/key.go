package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampFormat is the layout of the timestamp segment of a Key.
const TimestampFormat = "20060102150405"

const (
	keySep       = '_'
	timestampLen = len(TimestampFormat)
	idLen        = 36
	idOffset     = timestampLen + 1
	nameOffset   = idOffset + idLen + 1
)

// KeyOverhead is the number of bytes a Key adds in front of the filename.
const KeyOverhead = nameOffset

var ErrInvalidKey = errors.New("invalid job key")

// Key names a job's stored payload: {timestamp}_{id}_{filename}.
//
// The timestamp and id segments have fixed widths, so ParseKey reads them
// positionally and the filename may contain the separator.
type Key struct {
	Timestamp time.Time
	ID        string
	Filename  string
}

func NewKey(ts time.Time, id, filename string) Key {
	return Key{Timestamp: ts.UTC().Truncate(time.Second), ID: id, Filename: filename}
}

func (k Key) String() string {
	return k.Timestamp.UTC().Format(TimestampFormat) + string(keySep) + k.ID + string(keySep) + k.Filename
}

// TimestampString is the timestamp segment as it appears in the key.
func (k Key) TimestampString() string {
	return k.Timestamp.UTC().Format(TimestampFormat)
}

func ParseKey(s string) (Key, error) {
	if len(s) <= nameOffset || s[timestampLen] != keySep || s[nameOffset-1] != keySep {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	ts, err := time.ParseInLocation(TimestampFormat, s[:timestampLen], time.UTC)
	if err != nil {
		return Key{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidKey, err)
	}

	id := s[idOffset : idOffset+idLen]
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return Key{}, fmt.Errorf("%w: id %q", ErrInvalidKey, id)
	}

	name := s[nameOffset:]
	if strings.ContainsAny(name, `/\`) {
		return Key{}, fmt.Errorf("%w: filename %q", ErrInvalidKey, name)
	}

	return Key{Timestamp: ts, ID: id, Filename: name}, nil
}
