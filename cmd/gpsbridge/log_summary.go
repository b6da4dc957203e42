package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gpsbridge/internal/nmea"
	"gpsbridge/internal/replay"
)

type logSummary struct {
	Segments    int
	Sentences   int
	Timed       int
	BadChecksum int
	MaxDuration time.Duration
	TagCounts   map[string]int
}

func summarizeNMEALog(records []replay.Record) logSummary {
	s := logSummary{TagCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasSentences := false
	segments := 0

	for _, r := range records {
		if r.IsStart() {
			segments++
			origin = r.At
			continue
		}
		hasSentences = true
		s.Sentences++

		if r.Timed {
			s.Timed++
			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if at > s.MaxDuration {
				s.MaxDuration = at
			}
		}

		// Summaries are best effort: unverifiable sentences still count.
		if nmea.VerifyChecksum(r.Sentence) == nmea.ChecksumMismatch {
			s.BadChecksum++
			continue
		}
		s.TagCounts[nmea.ParseTag(r.Sentence).String()]++
	}
	if segments == 0 && hasSentences {
		segments = 1
	}
	s.Segments = segments
	return s
}

func printLogSummary(path string) error {
	return writeLogSummary(os.Stdout, path)
}

func writeLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}

	s := summarizeNMEALog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	fmt.Fprintf(w, "timed: %d\n", s.Timed)
	fmt.Fprintf(w, "bad_checksum: %d\n", s.BadChecksum)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	tags := make([]string, 0, len(s.TagCounts))
	for k := range s.TagCounts {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	fmt.Fprintf(w, "tag_counts:\n")
	for _, k := range tags {
		fmt.Fprintf(w, "  %s: %d\n", k, s.TagCounts[k])
	}
	return nil
}
