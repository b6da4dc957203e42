package replay

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRecordReplay_RoundTripSentencesInOrder(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nmea-record.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	// Use the same timestamp for every sentence so replay has zero waits.
	now := time.Now()

	in := []string{
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$PGRME,15.0,M,45.0,M,25.0,M*1C",
	}
	for _, s := range in {
		if err := w.WriteSentence(now, s); err != nil {
			_ = w.Close()
			t.Fatalf("WriteSentence() error: %v", err)
		}
	}
	if err := w.WriteSentence(now, "$BAD\r\n"); err == nil {
		t.Fatalf("expected error for embedded line break")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteSentence(now, in[0]); err == nil {
		t.Fatalf("expected error after Close")
	}

	recs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}

	var out []string
	fs := &fakeSleeper{}
	err = Play(context.Background(), recs, 1.0, false, fs, func(s string) error {
		out = append(out, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if len(fs.slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", fs.slept)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("sentences mismatch\n got: %q\nwant: %q", out, in)
	}
}
