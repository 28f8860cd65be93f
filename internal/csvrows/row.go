package csvrows

// Column names a CSV header field.
type Column string

// Columns consumed by the conversation importer. Every one of them is optional.
const (
	ColChatID         Column = "chat_id"
	ColType           Column = "type"
	ColText           Column = "text"
	ColFromMe         Column = "fromMe"
	ColMobileNumber   Column = "mobile_number"
	ColMessageCreated Column = "message_created"
)

// Row maps header columns to the field values of one record.
type Row map[Column]string

// Get reports the raw value and whether the column was present in the record.
func (r Row) Get(col Column) (string, bool) {
	v, ok := r[col]
	return v, ok
}

// Value returns the column value, or def when it is absent or empty.
func (r Row) Value(col Column, def string) string {
	if v := r[col]; v != "" {
		return v
	}
	return def
}
