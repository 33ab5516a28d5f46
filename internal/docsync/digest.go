package docsync

import (
	"encoding/hex"
	"strconv"
	"strings"

	"lukechampine.com/blake3"
)

// Row is the user-editable projection of one line of the Commands table.
type Row struct {
	Index int
	Text  string
}

// digest hashes the user-editable projection (rowIndex:text joined by
// newlines) so a tick with no human edits can be skipped entirely.
func digest(rows []Row) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(row.Index))
		b.WriteByte(':')
		b.WriteString(row.Text)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
