package editor

import (
	"fmt"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

// Links is the topic cross-link adjacency: owner topic key → ordered list of
// linked topic keys. It is maintained incrementally on link/unlink rather
// than re-derived by scanning the tree on every render, and it is purely a
// presentation grouping — linked topics keep their place in the unit tree
// and are regrouped at render time.
type Links map[string][]string

// OwnerOf returns the key of the topic that has claimed the given topic as a
// link target.
func (l Links) OwnerOf(key string) (string, bool) {
	for owner, targets := range l {
		for _, t := range targets {
			if t == key {
				return owner, true
			}
		}
	}
	return "", false
}

// IsSource reports whether the topic owns any links.
func (l Links) IsSource(key string) bool {
	return len(l[key]) > 0
}

// Toggle links target under owner, or unlinks it if already linked to that
// owner. The relation is irreflexive, and a topic can never be a source and
// a target at once: owners cannot be claimed, and claimed topics cannot own.
func (l Links) Toggle(owner, target string) error {
	if owner == target {
		return fmt.Errorf("konu kendisine bağlanamaz")
	}

	// Unlink if already owned by this owner.
	targets := l[owner]
	for i, t := range targets {
		if t == target {
			l[owner] = append(targets[:i:i], targets[i+1:]...)
			if len(l[owner]) == 0 {
				delete(l, owner)
			}
			return nil
		}
	}

	if claimedBy, ok := l.OwnerOf(target); ok {
		return fmt.Errorf("konu zaten başka bir konuya bağlı: %s", claimedBy)
	}
	if l.IsSource(target) {
		return fmt.Errorf("bağlantı sahibi konu hedef olamaz")
	}
	if _, ok := l.OwnerOf(owner); ok {
		return fmt.Errorf("bağlı bir konu bağlantı sahibi olamaz")
	}

	l[owner] = append(append([]string(nil), targets...), target)
	return nil
}

// Prune drops links whose owner or target no longer exists in the tree.
// Called after every topic removal.
func (l Links) Prune(valid map[string]bool) {
	for owner, targets := range l {
		if !valid[owner] {
			delete(l, owner)
			continue
		}
		kept := targets[:0]
		for _, t := range targets {
			if valid[t] {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(l, owner)
		} else {
			l[owner] = kept
		}
	}
}

// GroupedTopic is one render-ready topic row with its linked topics nested
// beneath it.
type GroupedTopic struct {
	Topic  catalog.Topic   `json:"topic"`
	Linked []catalog.Topic `json:"linked,omitempty"`
}

// Grouped produces the render view of one unit's topics: link targets never
// appear as top-level rows, only nested under their owner, in link order.
func Grouped(units []catalog.LearningUnit, unitIdx int, l Links) ([]GroupedTopic, error) {
	if unitIdx < 0 || unitIdx >= len(units) {
		return nil, fmt.Errorf("unit index %d out of range", unitIdx)
	}

	byKey := make(map[string]catalog.Topic)
	for _, u := range units {
		for _, tp := range u.Konular {
			byKey[tp.Key] = tp
		}
	}

	var out []GroupedTopic
	for _, tp := range units[unitIdx].Konular {
		if _, claimed := l.OwnerOf(tp.Key); claimed {
			continue
		}
		row := GroupedTopic{Topic: tp}
		for _, targetKey := range l[tp.Key] {
			if linked, ok := byKey[targetKey]; ok {
				row.Linked = append(row.Linked, linked)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// topicKeys collects every topic key in the tree.
func topicKeys(units []catalog.LearningUnit) map[string]bool {
	keys := make(map[string]bool)
	for _, u := range units {
		for _, tp := range u.Konular {
			keys[tp.Key] = true
		}
	}
	return keys
}
