// Package timefmt converts between the time shapes the pipeline deals in:
// float seconds internally, SRT timecodes (HH:MM:SS,mmm) on disk, and the
// compact MM:SS offsets the transcription model writes.
package timefmt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatSRT renders seconds as an SRT timecode, HH:MM:SS,mmm.
// Negative values clamp to zero.
func FormatSRT(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseSRT parses an SRT timecode (HH:MM:SS,mmm) into seconds. A period is
// accepted in place of the comma, and short fraction fields are scaled
// (",5" reads as 500ms).
func ParseSRT(s string) (float64, error) {
	normalized := strings.Replace(strings.TrimSpace(s), ".", ",", 1)
	clock, fraction, found := strings.Cut(normalized, ",")
	if !found || len(fraction) == 0 || len(fraction) > 3 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}

	fields := strings.Split(clock, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}
	h, err1 := strconv.Atoi(fields[0])
	m, err2 := strconv.Atoi(fields[1])
	sec, err3 := strconv.Atoi(fields[2])
	ms, err4 := strconv.Atoi(fraction)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 || ms < 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}

	// Scale short fractions: ",5" is half a second, ",05" is 50ms.
	switch len(fraction) {
	case 1:
		ms *= 100
	case 2:
		ms *= 10
	}

	return float64(h)*3600 + float64(m)*60 + float64(sec) + float64(ms)/1000, nil
}

// ParseMMSS parses a compact minutes:seconds offset. Minutes may exceed 59
// for long chunks; seconds must be exactly two digits below 60.
func ParseMMSS(s string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) != 2 || len(fields[1]) != 2 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}
	m, err1 := strconv.Atoi(fields[0])
	sec, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || m < 0 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}
	return float64(m)*60 + float64(sec), nil
}

// ParseFlexible accepts an SRT timecode, an HH:MM:SS clock value, or a
// compact MM:SS offset, trying the richer shapes first.
func ParseFlexible(s string) (float64, error) {
	if v, err := ParseSRT(s); err == nil {
		return v, nil
	}

	trimmed := strings.TrimSpace(s)
	fields := strings.Split(trimmed, ":")
	switch len(fields) {
	case 3:
		h, err1 := strconv.Atoi(fields[0])
		m, err2 := strconv.Atoi(fields[1])
		sec, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil ||
			h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
		}
		return float64(h)*3600 + float64(m)*60 + float64(sec), nil
	case 2:
		return ParseMMSS(trimmed)
	}
	return 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
}

// mmssRangeRe matches the compact "mm:ss - mm:ss" ranges the transcription
// model writes. Minutes may run past 59 on long chunks.
var mmssRangeRe = regexp.MustCompile(`(\d{1,3}):(\d{2})\s*-\s*(\d{1,3}):(\d{2})`)

// FindMMSSRange locates the first well-formed "mm:ss - mm:ss" range in line,
// returning its endpoints in seconds and the byte span of the match so
// callers can splice in a replacement. Candidates whose seconds field is 60
// or more are skipped.
func FindMMSSRange(line string) (start, end float64, loc [2]int, ok bool) {
	for _, m := range mmssRangeRe.FindAllStringSubmatchIndex(line, -1) {
		m1, _ := strconv.Atoi(line[m[2]:m[3]])
		s1, _ := strconv.Atoi(line[m[4]:m[5]])
		m2, _ := strconv.Atoi(line[m[6]:m[7]])
		s2, _ := strconv.Atoi(line[m[8]:m[9]])
		if s1 > 59 || s2 > 59 {
			continue
		}
		start = float64(m1)*60 + float64(s1)
		end = float64(m2)*60 + float64(s2)
		return start, end, [2]int{m[0], m[1]}, true
	}
	return 0, 0, [2]int{}, false
}

// SplitRange parses a timing range like "00:00:01,000 --> 00:00:04,000" or
// "0:15 - 0:20". Endpoints may use any shape ParseFlexible accepts.
func SplitRange(s string) (start, end float64, err error) {
	trimmed := strings.TrimSpace(s)

	var left, right string
	if a, b, found := strings.Cut(trimmed, "-->"); found {
		left, right = a, b
	} else if a, b, found := strings.Cut(trimmed, "-"); found {
		left, right = a, b
	} else {
		return 0, 0, fmt.Errorf("%q: %w", s, ErrInvalidTimecode)
	}

	start, err = ParseFlexible(left)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseFlexible(right)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Duration formats a duration as HH:MM:SS or MM:SS.
func Duration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// DurationHuman formats a duration for human display.
// Examples: "2h", "30m", "1h30m", "45s"
func DurationHuman(d time.Duration) string {
	if d >= time.Hour {
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}

// Size formats a size in bytes for human display.
// Uses MB for sizes >= 1MB, KB otherwise.
func Size(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	if bytes >= mb {
		return fmt.Sprintf("%d MB", bytes/mb)
	}
	if bytes >= kb {
		return fmt.Sprintf("%d KB", bytes/kb)
	}
	return fmt.Sprintf("%d bytes", bytes)
}
