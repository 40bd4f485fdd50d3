// Package editor holds course edit sessions: the learning-unit tree, its
// mutation operations, the bulk text divider and topic cross-linking. All
// tree state lives in memory for the lifetime of a session and is written
// back to the backend in one save call.
package editor

import (
	"fmt"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

// Every operation below returns a freshly built tree. Nothing is shared with
// the input slices, so a caller holding the previous snapshot can compare
// the two cheaply and renderers relying on shallow comparison see every
// change.

// UnitPatch carries optional unit field updates.
type UnitPatch struct {
	Adi  *string `json:"adi,omitempty"`
	Sure *int    `json:"sure,omitempty"`
}

// AddUnit appends a new unit with the next order index.
func AddUnit(units []catalog.LearningUnit, name string, sure int) []catalog.LearningUnit {
	out := catalog.CloneUnits(units)
	out = append(out, catalog.LearningUnit{
		Adi:     name,
		Sure:    sure,
		Sira:    len(out) + 1,
		Konular: []catalog.Topic{},
	})
	return out
}

// RemoveUnit drops the unit at index i and renumbers the remaining units
// from 1, preserving relative order.
func RemoveUnit(units []catalog.LearningUnit, i int) ([]catalog.LearningUnit, error) {
	if i < 0 || i >= len(units) {
		return nil, fmt.Errorf("unit index %d out of range", i)
	}
	out := make([]catalog.LearningUnit, 0, len(units)-1)
	out = append(out, catalog.CloneUnits(units[:i])...)
	out = append(out, catalog.CloneUnits(units[i+1:])...)
	renumberUnits(out)
	return out, nil
}

// UpdateUnit edits a unit's name and/or duration.
func UpdateUnit(units []catalog.LearningUnit, i int, patch UnitPatch) ([]catalog.LearningUnit, error) {
	if i < 0 || i >= len(units) {
		return nil, fmt.Errorf("unit index %d out of range", i)
	}
	out := catalog.CloneUnits(units)
	if patch.Adi != nil {
		out[i].Adi = *patch.Adi
	}
	if patch.Sure != nil {
		out[i].Sure = *patch.Sure
	}
	return out, nil
}

// AddTopic appends a topic under the given unit. key is the session-local
// handle used by cross-links.
func AddTopic(units []catalog.LearningUnit, unitIdx int, name, key string) ([]catalog.LearningUnit, error) {
	if unitIdx < 0 || unitIdx >= len(units) {
		return nil, fmt.Errorf("unit index %d out of range", unitIdx)
	}
	out := catalog.CloneUnits(units)
	out[unitIdx].Konular = append(out[unitIdx].Konular, catalog.Topic{
		Adi:        name,
		Key:        key,
		Sira:       len(out[unitIdx].Konular) + 1,
		Kazanimlar: []catalog.Outcome{},
	})
	return out, nil
}

// RemoveTopic drops a topic and renumbers its siblings from 1.
func RemoveTopic(units []catalog.LearningUnit, unitIdx, topicIdx int) ([]catalog.LearningUnit, error) {
	if err := checkTopic(units, unitIdx, topicIdx); err != nil {
		return nil, err
	}
	out := catalog.CloneUnits(units)
	konular := out[unitIdx].Konular
	out[unitIdx].Konular = append(konular[:topicIdx:topicIdx], konular[topicIdx+1:]...)
	renumberTopics(out[unitIdx].Konular)
	return out, nil
}

// UpdateTopic renames a topic.
func UpdateTopic(units []catalog.LearningUnit, unitIdx, topicIdx int, name string) ([]catalog.LearningUnit, error) {
	if err := checkTopic(units, unitIdx, topicIdx); err != nil {
		return nil, err
	}
	out := catalog.CloneUnits(units)
	out[unitIdx].Konular[topicIdx].Adi = name
	return out, nil
}

// AddOutcome appends an outcome under a topic.
func AddOutcome(units []catalog.LearningUnit, unitIdx, topicIdx int, text string) ([]catalog.LearningUnit, error) {
	if err := checkTopic(units, unitIdx, topicIdx); err != nil {
		return nil, err
	}
	out := catalog.CloneUnits(units)
	topic := &out[unitIdx].Konular[topicIdx]
	topic.Kazanimlar = append(topic.Kazanimlar, catalog.Outcome{
		Aciklama: text,
		Sira:     len(topic.Kazanimlar) + 1,
	})
	return out, nil
}

// RemoveOutcome drops an outcome and renumbers its siblings from 1.
func RemoveOutcome(units []catalog.LearningUnit, unitIdx, topicIdx, outcomeIdx int) ([]catalog.LearningUnit, error) {
	if err := checkTopic(units, unitIdx, topicIdx); err != nil {
		return nil, err
	}
	if outcomeIdx < 0 || outcomeIdx >= len(units[unitIdx].Konular[topicIdx].Kazanimlar) {
		return nil, fmt.Errorf("outcome index %d out of range", outcomeIdx)
	}
	out := catalog.CloneUnits(units)
	topic := &out[unitIdx].Konular[topicIdx]
	topic.Kazanimlar = append(topic.Kazanimlar[:outcomeIdx:outcomeIdx], topic.Kazanimlar[outcomeIdx+1:]...)
	renumberOutcomes(topic.Kazanimlar)
	return out, nil
}

// UpdateOutcome edits one outcome's text.
func UpdateOutcome(units []catalog.LearningUnit, unitIdx, topicIdx, outcomeIdx int, text string) ([]catalog.LearningUnit, error) {
	if err := checkTopic(units, unitIdx, topicIdx); err != nil {
		return nil, err
	}
	if outcomeIdx < 0 || outcomeIdx >= len(units[unitIdx].Konular[topicIdx].Kazanimlar) {
		return nil, fmt.Errorf("outcome index %d out of range", outcomeIdx)
	}
	out := catalog.CloneUnits(units)
	out[unitIdx].Konular[topicIdx].Kazanimlar[outcomeIdx].Aciklama = text
	return out, nil
}

// SetPrimaryOutcome edits the outcome shown on the topic row itself: the
// first outcome is updated in place, or created when the topic has none yet.
// Further outcomes are reachable only through the explicit outcome
// operations.
func SetPrimaryOutcome(units []catalog.LearningUnit, unitIdx, topicIdx int, text string) ([]catalog.LearningUnit, error) {
	if err := checkTopic(units, unitIdx, topicIdx); err != nil {
		return nil, err
	}
	out := catalog.CloneUnits(units)
	topic := &out[unitIdx].Konular[topicIdx]
	if len(topic.Kazanimlar) == 0 {
		topic.Kazanimlar = []catalog.Outcome{{Aciklama: text, Sira: 1}}
		return out, nil
	}
	topic.Kazanimlar[0].Aciklama = text
	return out, nil
}

func checkTopic(units []catalog.LearningUnit, unitIdx, topicIdx int) error {
	if unitIdx < 0 || unitIdx >= len(units) {
		return fmt.Errorf("unit index %d out of range", unitIdx)
	}
	if topicIdx < 0 || topicIdx >= len(units[unitIdx].Konular) {
		return fmt.Errorf("topic index %d out of range", topicIdx)
	}
	return nil
}

func renumberUnits(units []catalog.LearningUnit) {
	for i := range units {
		units[i].Sira = i + 1
	}
}

func renumberTopics(topics []catalog.Topic) {
	for i := range topics {
		topics[i].Sira = i + 1
	}
}

func renumberOutcomes(outcomes []catalog.Outcome) {
	for i := range outcomes {
		outcomes[i].Sira = i + 1
	}
}
