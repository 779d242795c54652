package completion

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"
)

// Choice is the user's answer when local and account progress differ.
type Choice string

const (
	// ChoiceMerge keeps the union of both sets.
	ChoiceMerge Choice = "merge"
	// ChoiceReplace replaces the account set with the local one.
	ChoiceReplace Choice = "replace"
	// ChoiceDiscard discards the local set and keeps the account one.
	ChoiceDiscard Choice = "discard"
)

// ParseChoice validates a choice string.
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case ChoiceMerge, ChoiceReplace, ChoiceDiscard:
		return c, nil
	}
	return "", fmt.Errorf("unknown merge choice %q", s)
}

// Merge resolves local and account keys by choice. The result is sorted
// and free of duplicates.
func Merge(local, account []string, choice Choice) []string {
	set := mapset.New[string]()
	if choice == ChoiceMerge || choice == ChoiceReplace {
		for _, k := range local {
			set.Put(k)
		}
	}
	if choice == ChoiceMerge || choice == ChoiceDiscard {
		for _, k := range account {
			set.Put(k)
		}
	}
	return sorted(set)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
