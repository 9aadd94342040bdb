package selection

import "fmt"

// Empty is the value of a slot with no selection.
const Empty = ""

// IndexError reports a slot operation outside the current list bounds.
type IndexError struct {
	Index int
	Len   int
}

func (e IndexError) Error() string {
	return fmt.Sprintf("slot index %d out of range [0,%d)", e.Index, e.Len)
}

// List is the ordered sequence of slots. It never has zero slots.
//
// Uniqueness of values across slots is not enforced here; callers prevent
// duplicates by only offering available values.
type List struct {
	slots []string
}

// New returns a list holding one empty slot.
func New() *List {
	l := &List{}
	l.Reset()
	return l
}

// FromValues builds a list from raw slot values. An empty input yields one
// empty slot.
func FromValues(values []string) *List {
	if len(values) == 0 {
		return New()
	}
	slots := make([]string, len(values))
	copy(slots, values)
	return &List{slots: slots}
}

// Reset re-initializes the list to one empty slot.
func (l *List) Reset() {
	l.slots = []string{Empty}
}

func (l *List) Len() int { return len(l.slots) }

func (l *List) check(index int) error {
	if index < 0 || index >= len(l.slots) {
		return IndexError{Index: index, Len: len(l.slots)}
	}
	return nil
}

// At returns the value held by slot index.
func (l *List) At(index int) (string, error) {
	if err := l.check(index); err != nil {
		return "", err
	}
	return l.slots[index], nil
}

// Set writes value (or Empty) into slot index.
func (l *List) Set(index int, value string) error {
	if err := l.check(index); err != nil {
		return err
	}
	l.slots[index] = value
	return nil
}

// Append adds one empty slot at the end.
func (l *List) Append() {
	l.slots = append(l.slots, Empty)
}

// Remove deletes slot index. Removing the last slot leaves one empty slot.
func (l *List) Remove(index int) error {
	if err := l.check(index); err != nil {
		return err
	}
	l.slots = append(l.slots[:index:index], l.slots[index+1:]...)
	if len(l.slots) == 0 {
		l.Reset()
	}
	return nil
}

// Slots returns a copy of every slot value in order.
func (l *List) Slots() []string {
	out := make([]string, len(l.slots))
	copy(out, l.slots)
	return out
}

// Filled returns the non-empty slot values in slot order.
func (l *List) Filled() []string {
	out := make([]string, 0, len(l.slots))
	for _, v := range l.slots {
		if v != Empty {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns an independent copy.
func (l *List) Clone() *List {
	return &List{slots: l.Slots()}
}

// Draft is the segment being composed.
type Draft struct {
	Name  string
	Slots *List
}

// NewDraft returns an unnamed draft with one empty slot.
func NewDraft() Draft {
	return Draft{Slots: New()}
}

// Clone deep-copies the draft.
func (d Draft) Clone() Draft {
	out := Draft{Name: d.Name}
	if d.Slots != nil {
		out.Slots = d.Slots.Clone()
	} else {
		out.Slots = New()
	}
	return out
}
