package badgerstore

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// Key partitions. The separator byte cannot occur in validated names.
var (
	prefixQuote       = []byte("q\x00")
	prefixAuthorIndex = []byte("ia\x00")
	prefixRecency     = []byte("ir\x00")
	prefixTag         = []byte("t\x00")
	prefixTagCount    = []byte("tc\x00")
	prefixMapping     = []byte("m\x00")
	prefixLocator     = []byte("ml\x00")
	prefixGuard       = []byte("u\x00")
	prefixAuthor      = []byte("a\x00")
	prefixOutbox      = []byte("o\x00")
	prefixDeadLetter  = []byte("d\x00")

	keyOutboxSequence = []byte("s\x00outbox")
)

const sep = 0x00

func key(prefix []byte, parts ...string) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p) + 1
	}

	b := make([]byte, 0, n)
	b = append(b, prefix...)

	for i, p := range parts {
		if i > 0 {
			b = append(b, sep)
		}

		b = append(b, p...)
	}

	return b
}

// bucket returns the prefix of every key under one partition value, separator included.
func bucket(prefix []byte, value string) []byte {
	return append(key(prefix, value), sep)
}

// newestFirst encodes t so that later times sort before earlier ones.
func newestFirst(t time.Time) string {
	return fmt.Sprintf("%016x", math.MaxUint64-uint64(t.UnixNano()))
}

func quoteKey(id string) []byte {
	return key(prefixQuote, id)
}

func authorIndexKey(q *domain.Quote) []byte {
	return key(prefixAuthorIndex, q.AuthorKey, newestFirst(q.CreatedAt), q.ID)
}

func recencyKey(q *domain.Quote) []byte {
	return key(prefixRecency, newestFirst(q.CreatedAt), q.ID)
}

func tagKey(tag string) []byte {
	return key(prefixTag, tag)
}

func tagCountKey(tag string) []byte {
	return key(prefixTagCount, tag)
}

func mappingKey(tag string, quoteCreatedAt time.Time, quoteID string) []byte {
	return key(prefixMapping, tag, newestFirst(quoteCreatedAt), quoteID)
}

func locatorKey(tag, quoteID string) []byte {
	return key(prefixLocator, tag, quoteID)
}

func guardKey(fingerprint string) []byte {
	return key(prefixGuard, strconv.FormatUint(xxhash.Sum64String(fingerprint), 16))
}

func authorKey(author string) []byte {
	return key(prefixAuthor, author)
}

func seqKey(prefix []byte, seq uint64) []byte {
	b := make([]byte, len(prefix)+8)
	copy(b, prefix)
	binary.BigEndian.PutUint64(b[len(prefix):], seq)

	return b
}

func seqFromKey(prefix, k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(prefix):])
}

func encodeCount(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))

	return b
}

func decodeCount(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}

	return int64(binary.BigEndian.Uint64(b))
}

func encodeCursor(k []byte) string {
	return base64.RawURLEncoding.EncodeToString(k)
}

// decodeCursor returns the key a cursor resumes after.
// Cursors issued for a different partition are rejected.
func decodeCursor(cursor string, partition []byte) ([]byte, error) {
	if cursor == "" {
		return nil, nil
	}

	k, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !bytes.HasPrefix(k, partition) {
		return nil, domain.NewValidationError("cursor", "invalid or foreign cursor")
	}

	return k, nil
}
