package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsbridge/internal/nmea"
	"gpsbridge/internal/receiver"
)

func nmeaLine(payload string) string {
	return "$" + payload + "*" + nmea.Checksum(payload)
}

var t0 = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

type memSink struct {
	name   string
	mu     sync.Mutex
	got    []Message
	err    error
	closed bool
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Publish(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, m)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.err
}

func (s *memSink) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.got...)
}

func TestNewMessage_CarriesKindData(t *testing.T) {
	st := receiver.NewState()
	ev, ok := st.Apply(t0, nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	require.True(t, ok)

	m := NewMessage(ev, st.Snapshot())
	assert.Equal(t, receiver.KindFixQuality, m.Kind)
	assert.True(t, m.HasFix)
	fq, ok := m.Data.(nmea.FixQualityReport)
	require.True(t, ok)
	assert.Equal(t, 8, fq.Satellites)

	raw, err := m.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "fix_quality", decoded["kind"])
	assert.Equal(t, "GP", decoded["talker"])
	assert.Contains(t, decoded, "data")

	timeout := NewMessage(st.Timeout(t0.Add(time.Minute)), st.Snapshot())
	assert.Equal(t, receiver.KindTimeout, timeout.Kind)
	assert.Nil(t, timeout.Data)
	assert.False(t, timeout.HasFix)
}

func TestHub_PublishContinuesPastFailures(t *testing.T) {
	bad := &memSink{name: "bad", err: errors.New("broker down")}
	good := &memSink{name: "good"}
	h := NewHub(bad, nil, good)
	require.Equal(t, 2, h.Len())

	err := h.Publish(Message{Kind: receiver.KindPosition})
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, good.messages(), 1)

	st := h.Stats()
	assert.Equal(t, []string{"bad", "good"}, st.Sinks)
	assert.Equal(t, uint64(1), st.Published)
	assert.Equal(t, uint64(1), st.Failed)
}

func TestHub_CloseAggregatesErrors(t *testing.T) {
	a := &memSink{name: "a", err: errors.New("a failed")}
	b := &memSink{name: "b", err: errors.New("b failed")}
	c := &memSink{name: "c"}
	h := NewHub(a, b, c)

	err := h.Close()
	require.Error(t, err)
	assert.ErrorContains(t, err, "close a: a failed")
	assert.ErrorContains(t, err, "close b: b failed")
	assert.True(t, c.closed)
	assert.Equal(t, 0, h.Len())
	assert.NoError(t, h.Close())
}

func TestHub_RunPumpsEvents(t *testing.T) {
	st := receiver.NewState()
	b := receiver.NewBroadcaster()
	sink := &memSink{name: "mem"}
	h := NewHub(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, b, st) }()
	require.Eventually(t, func() bool { return b.Stats().Subscribers == 1 }, time.Second, time.Millisecond)

	ev, ok := st.Apply(t0, nmeaLine("GPGLL,4916.45,N,12311.12,W,225444,A"))
	require.True(t, ok)
	b.Publish(ev)

	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, receiver.KindLatLon, sink.messages()[0].Kind)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 0, b.Stats().Subscribers)
}

func TestHub_RunEndsWhenBroadcasterCloses(t *testing.T) {
	b := receiver.NewBroadcaster()
	h := NewHub()
	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background(), b, receiver.NewState()) }()
	require.Eventually(t, func() bool { return b.Stats().Subscribers == 1 }, time.Second, time.Millisecond)
	b.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return !t.timeout }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }

func (t *fakeToken) Error() error { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMQTT struct {
	topics       []string
	retained     []bool
	qos          []byte
	payloads     [][]byte
	token        *fakeToken
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.qos = append(f.qos, qos)
	f.retained = append(f.retained, retained)
	f.payloads = append(f.payloads, payload.([]byte))
	if f.token != nil {
		return f.token
	}
	return &fakeToken{}
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestMQTTSink_TopicPerKindRetained(t *testing.T) {
	client := &fakeMQTT{}
	s := newMQTTSink(client, "gps/receiver/")

	require.NoError(t, s.Publish(Message{Kind: receiver.KindPosition, At: t0}))
	require.NoError(t, s.Publish(Message{Kind: receiver.KindSatellitesInView, At: t0}))
	assert.Equal(t, []string{"gps/receiver/position", "gps/receiver/satellites_in_view"}, client.topics)
	assert.Equal(t, []bool{true, true}, client.retained)
	assert.Equal(t, []byte{0, 0}, client.qos)

	var m Message
	require.NoError(t, json.Unmarshal(client.payloads[0], &m))
	assert.Equal(t, receiver.KindPosition, m.Kind)

	require.NoError(t, s.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTSink_TokenErrors(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{timeout: true}}
	s := newMQTTSink(client, "")
	assert.ErrorContains(t, s.Publish(Message{Kind: receiver.KindTimeout}), "timed out")
	assert.Equal(t, "gpsbridge/timeout", client.topics[0])

	client.token = &fakeToken{err: errors.New("not connected")}
	assert.ErrorContains(t, s.Publish(Message{Kind: receiver.KindTimeout}), "not connected")
}

func TestNewMQTTSink_RequiresBroker(t *testing.T) {
	_, err := NewMQTTSink(MQTTConfig{})
	assert.Error(t, err)
}

type fakeNATS struct {
	subjects []string
	drained  bool
	err      error
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	return f.err
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSink_SubjectPerKind(t *testing.T) {
	conn := &fakeNATS{}
	s := newNATSSink(conn, "gps.")
	require.NoError(t, s.Publish(Message{Kind: receiver.KindFixQuality}))
	require.NoError(t, s.Publish(Message{Kind: receiver.KindVendorError}))
	assert.Equal(t, []string{"gps.fix_quality", "gps.vendor_error"}, conn.subjects)

	conn.err = errors.New("nats: connection closed")
	assert.Error(t, s.Publish(Message{Kind: receiver.KindUnknown}))

	require.NoError(t, s.Close())
	assert.True(t, conn.drained)

	_, err := NewNATSSink(NATSConfig{})
	assert.Error(t, err)
}

type fakeSender struct {
	sent   []string
	closed bool
}

func (f *fakeSender) SendSentence(s string) error {
	f.sent = append(f.sent, s)
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestUDPSink_SendsRawSentences(t *testing.T) {
	out := &fakeSender{}
	s := &UDPSink{out: out}
	line := nmeaLine("GPGLL,4916.45,N,12311.12,W,225444,A")

	require.NoError(t, s.Publish(Message{Kind: receiver.KindLatLon, Sentence: line}))
	require.NoError(t, s.Publish(Message{Kind: receiver.KindTimeout}))
	assert.Equal(t, []string{line}, out.sent)
	require.NoError(t, s.Close())
	assert.True(t, out.closed)
	assert.Equal(t, "udp", s.Name())
}
