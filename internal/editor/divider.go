package editor

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

// The divider turns a pasted block of numbered text into topic or outcome
// rows. A line starting with a numeric prefix ("1.", "2.3.", "4.1") opens a
// new group; lines without a prefix continue the previous group's label.

// Rejections are user-visible; the UI shows them verbatim.
var (
	ErrEmptyInput = errors.New("bölünecek metin boş")
	ErrNoGroups   = errors.New("numaralı satır bulunamadı")
)

var groupPrefix = regexp.MustCompile(`^\d+(\.\d+)*\.?\s*`)

// Group is one parsed entry.
type Group struct {
	Label string `json:"label"`
}

// Divide parses the pasted text. Lines before the first numbered line have
// no group to attach to and are discarded; input yielding zero groups is a
// rejected operation.
func Divide(text string) ([]Group, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	var groups []Group
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if loc := groupPrefix.FindString(line); loc != "" {
			groups = append(groups, Group{Label: strings.TrimSpace(line[len(loc):])})
			continue
		}
		if len(groups) == 0 {
			continue
		}
		last := &groups[len(groups)-1]
		if last.Label == "" {
			last.Label = line
		} else {
			last.Label += " " + line
		}
	}

	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	return groups, nil
}

// DivideIntoTopics parses text and appends one topic per group under the
// given unit. newKey supplies session-local topic handles.
func DivideIntoTopics(units []catalog.LearningUnit, unitIdx int, text string, newKey func() string) ([]catalog.LearningUnit, error) {
	groups, err := Divide(text)
	if err != nil {
		return nil, err
	}
	out := units
	for _, g := range groups {
		out, err = AddTopic(out, unitIdx, g.Label, newKey())
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DivideIntoOutcomes parses text in achievement mode: each group's label is
// written into outcome text under the given topic instead of becoming a
// topic of its own.
func DivideIntoOutcomes(units []catalog.LearningUnit, unitIdx, topicIdx int, text string) ([]catalog.LearningUnit, error) {
	groups, err := Divide(text)
	if err != nil {
		return nil, err
	}
	out := units
	for _, g := range groups {
		out, err = AddOutcome(out, unitIdx, topicIdx, g.Label)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
