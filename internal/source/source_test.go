package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "user_id,email,login_time,logout_time,price,purchase_status,user_agent,is_active\n"

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestCSVFile_Read(t *testing.T) {
	p := writeFile(t, "in.csv", header+
		"1, a@example.com ,2024-01-01T10:00,2024-01-01T11:00,10.5,completed,Mozilla/5.0,1\n"+
		"2,b@example.com,,,abc,PENDING,,0\n")
	recs, err := CSVFile{Path: p}.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, " a@example.com ", recs[0].Email, "source keeps raw text")
	assert.Equal(t, "10.5", recs[0].Price)
	assert.Equal(t, "abc", recs[1].Price)
	assert.Equal(t, "0", recs[1].IsActive)
}

func TestCSVFile_Errors(t *testing.T) {
	_, err := CSVFile{Path: filepath.Join(t.TempDir(), "missing.csv")}.Read(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnreadable)

	p := writeFile(t, "bad.csv", "user_id,email\n1,a@example.com\n")
	_, err = CSVFile{Path: p}.Read(context.Background())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "login_time")

	_, err = CSVFile{Path: writeFile(t, "empty.csv", "")}.Read(context.Background())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestJSONFile_Read(t *testing.T) {
	p := writeFile(t, "in.json", `[
		{"user_id": 7, "email": "a@example.com", "login_time": "2024-01-01T10:00:00", "logout_time": null,
		 "price": 12.50, "purchase_status": "failed", "user_agent": "x", "is_active": true}
	]`)
	recs, err := JSONFile{Path: p}.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].UserID)
	assert.Equal(t, "12.50", recs[0].Price)
	assert.Equal(t, "", recs[0].LogoutTime)
	assert.Equal(t, "true", recs[0].IsActive)
}

func TestJSONFile_Errors(t *testing.T) {
	_, err := JSONFile{Path: writeFile(t, "x.json", `{"not": "an array"}`)}.Read(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnreadable)

	_, err = JSONFile{Path: writeFile(t, "y.json", `[{"user_id": "1"}]`)}.Read(context.Background())
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	recs, err := JSONFile{Path: writeFile(t, "z.json", `[]`)}.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type fakeConsumer struct {
	values    [][]byte
	committed int
	readErr   error
}

func (f *fakeConsumer) SubscribeTopics([]string, ck.RebalanceCb) error { return nil }

func (f *fakeConsumer) ReadMessage(time.Duration) (*ck.Message, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.values) == 0 {
		return nil, ck.NewError(ck.ErrTimedOut, "timed out", false)
	}
	v := f.values[0]
	f.values = f.values[1:]
	return &ck.Message{Value: v}, nil
}

func (f *fakeConsumer) Commit() ([]ck.TopicPartition, error) {
	f.committed++
	return nil, nil
}

func (f *fakeConsumer) Close() error { return nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const kafkaRecord = `{"user_id":"1","email":"a@example.com","login_time":"2024-01-01T10:00","logout_time":"2024-01-01T11:00","price":"5","purchase_status":"pending","user_agent":"ua"}`

func TestKafka_ReadUntilIdleAndAck(t *testing.T) {
	fc := &fakeConsumer{values: [][]byte{[]byte(kafkaRecord), []byte("garbage"), []byte(kafkaRecord)}}
	k := NewKafkaWith(KafkaConfig{Topic: "activity"}, fc, quiet())
	recs, err := k.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 1, k.Skipped)
	assert.Zero(t, fc.committed, "reading must not commit")

	require.NoError(t, k.Ack(context.Background()))
	assert.Equal(t, 1, fc.committed)
}

func TestKafka_MaxRecords(t *testing.T) {
	fc := &fakeConsumer{values: [][]byte{[]byte(kafkaRecord), []byte(kafkaRecord), []byte(kafkaRecord)}}
	recs, err := NewKafkaWith(KafkaConfig{Topic: "t", MaxRecords: 2}, fc, quiet()).Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Len(t, fc.values, 1)
}

func TestKafka_ReadError(t *testing.T) {
	fc := &fakeConsumer{readErr: errors.New("broker transport failure")}
	_, err := NewKafkaWith(KafkaConfig{Topic: "t"}, fc, quiet()).Read(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnreadable)
}
