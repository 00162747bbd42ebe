package domain

import (
	"errors"
	"strings"
)

// AudioField names one of the audio URL columns of a LearningMaterial. The
// set is closed: only the constants below are accepted by the material store.
type AudioField string

const (
	AudioVocabLecture AudioField = "audio_vocab_lecture"
	AudioSummary      AudioField = "audio_summary"
	AudioSummaryBi    AudioField = "audio_summary_bi"
	AudioPodcast      AudioField = "audio_podcast"
)

// ErrUnknownAudioField is returned by ParseAudioField for names outside the
// closed set.
var ErrUnknownAudioField = errors.New("unknown audio field")

// AudioFields lists every valid AudioField in display order.
func AudioFields() []AudioField {
	return []AudioField{AudioVocabLecture, AudioSummary, AudioSummaryBi, AudioPodcast}
}

// Valid reports whether f is one of the known audio columns.
func (f AudioField) Valid() bool {
	switch f {
	case AudioVocabLecture, AudioSummary, AudioSummaryBi, AudioPodcast:
		return true
	}
	return false
}

// ParseAudioField converts a caller-supplied name (case-insensitive,
// surrounding whitespace ignored) into an AudioField.
func ParseAudioField(s string) (AudioField, error) {
	f := AudioField(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", ErrUnknownAudioField
	}
	return f, nil
}

// Column returns the database column backing f.
func (f AudioField) Column() string { return string(f) }
