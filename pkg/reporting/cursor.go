package reporting

// startToken is the page token sent with the first request of a result set.
const startToken = "0"

// noneToken is a literal "no more data" marker seen in place of an absent
// next page token.
const noneToken = "None"

// Cursor is the position to resume pagination from. The zero value is
// EndCursor, meaning no further pages exist.
type Cursor struct {
	token string
	valid bool
}

// EndCursor marks the end of a result set.
var EndCursor = Cursor{}

// StartCursor returns the cursor for the first page.
func StartCursor() Cursor {
	return Cursor{token: startToken, valid: true}
}

// CursorFromToken converts a next page token into a Cursor. An empty token and
// the literal "None" both map to EndCursor.
func CursorFromToken(token string) Cursor {
	if token == "" || token == noneToken {
		return EndCursor
	}
	return Cursor{token: token, valid: true}
}

// Token returns the page token to send, or "" at the end.
func (c Cursor) Token() string {
	return c.token
}

// Done reports whether the cursor marks the end of the result set.
func (c Cursor) Done() bool {
	return !c.valid
}

// String implements fmt.Stringer for log fields.
func (c Cursor) String() string {
	if c.Done() {
		return "<end>"
	}
	return c.token
}
