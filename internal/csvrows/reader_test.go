package csvrows

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func readAll(t *testing.T, r *Reader) []Row {
	t.Helper()
	var rows []Row
	for row, err := range r.All() {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestReader_HeaderKeyedRows(t *testing.T) {
	in := "chat_id,type,text,fromMe\n" +
		"A,text,hi,1\n" +
		"B,image,,0\n"

	rows := readAll(t, NewReader(strings.NewReader(in)))

	require.Len(t, rows, 2)
	assert.Equal(t, Row{ColChatID: "A", ColType: "text", ColText: "hi", ColFromMe: "1"}, rows[0])
	assert.Equal(t, Row{ColChatID: "B", ColType: "image", ColText: "", ColFromMe: "0"}, rows[1])
}

func TestReader_HeaderNeverYielded(t *testing.T) {
	rows := readAll(t, NewReader(strings.NewReader("chat_id,text\n")))
	assert.Empty(t, rows)
}

func TestReader_ShortRowsLeaveColumnsAbsent(t *testing.T) {
	rows := readAll(t, NewReader(strings.NewReader("chat_id,type,text\nA,text\n")))

	require.Len(t, rows, 1)
	_, ok := rows[0].Get(ColText)
	assert.False(t, ok, "text should be absent")
	assert.Equal(t, "text", rows[0].Value(ColType, ""))
}

func TestReader_ExtraFieldsDropped(t *testing.T) {
	rows := readAll(t, NewReader(strings.NewReader("chat_id,text\nA,hi,surplus,more\n")))

	require.Len(t, rows, 1)
	assert.Len(t, rows[0], 2)
	assert.Equal(t, "hi", rows[0][ColText])
}

func TestReader_DuplicateHeaderLaterColumnWins(t *testing.T) {
	rows := readAll(t, NewReader(strings.NewReader("text,text\nfirst,second\n")))

	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0][ColText])
}

func TestReader_QuotedFieldsWithCommasAndNewlines(t *testing.T) {
	in := "chat_id,text\r\nA,\"hello, world\nsecond line\"\r\n"
	rows := readAll(t, NewReader(strings.NewReader(in)))

	require.Len(t, rows, 1)
	assert.Equal(t, "hello, world\nsecond line", rows[0][ColText])
}

func TestReader_StripsUTF8BOM(t *testing.T) {
	in := "\xEF\xBB\xBFchat_id,text\nA,hi\n"
	r := NewReader(strings.NewReader(in))

	header, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, ColChatID, header[0])

	rows := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0][ColChatID])
}

func TestReader_RejectsUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	in, err := enc.String("chat_id,type,text\nA,text,hi\n")
	require.NoError(t, err)

	r := NewReader(strings.NewReader(in))
	_, err = r.Header()
	require.ErrorIs(t, err, ErrMalformedInput)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Line)

	var rows int
	for _, err := range NewReader(strings.NewReader(in)).All() {
		assert.ErrorIs(t, err, ErrMalformedInput)
		rows++
	}
	assert.Equal(t, 1, rows)
}

func TestReader_InvalidUTF8InQuotedMultiline(t *testing.T) {
	in := "chat_id,text\nA,\"one\ntwo \xc3\"\n"

	_, err := NewReader(strings.NewReader(in)).Next()
	require.ErrorIs(t, err, ErrMalformedInput)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 3, de.Line)
}

func TestReader_KeepsLoneCarriageReturn(t *testing.T) {
	in := "chat_id,type,text\r\nA,text,a\rb\r\n"

	rows := readAll(t, NewReader(strings.NewReader(in)))
	require.Len(t, rows, 1)
	assert.Equal(t, "a\rb", rows[0][ColText])
	assert.Equal(t, "A", rows[0][ColChatID])
}

func TestReader_EmptyInput(t *testing.T) {
	r := NewReader(strings.NewReader(""))

	_, err := r.Next()
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = r.Header()
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestReader_InvalidUTF8(t *testing.T) {
	in := "chat_id,text\nA,ok\nB,bad\xff\xfe\n"
	r := NewReader(strings.NewReader(in))

	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", row[ColText])

	_, err = r.Next()
	require.ErrorIs(t, err, ErrMalformedInput)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 3, de.Line)

	// The reader stays failed.
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestReader_InvalidUTF8InHeader(t *testing.T) {
	_, err := NewReader(strings.NewReader("chat\xc3_id,text\n")).Header()
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestReader_NextAfterEnd(t *testing.T) {
	r := NewReader(strings.NewReader("chat_id\nA\n"))

	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_AllStopsOnError(t *testing.T) {
	r := NewReader(strings.NewReader(""))

	var errs []error
	for row, err := range r.All() {
		assert.Nil(t, row)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrEmptyInput)
}

func TestRow_Value(t *testing.T) {
	row := Row{ColChatID: "", ColMobileNumber: "555"}

	assert.Equal(t, "default", row.Value(ColChatID, "default"))
	assert.Equal(t, "555", row.Value(ColMobileNumber, "x"))
	assert.Equal(t, "fallback", row.Value(ColMessageCreated, "fallback"))
}
