package logbook

import "fmt"

// Journal writes the entries of one order. Each line starts with "#<id>" so
// a tail of the logbook reads as a per-order history.
type Journal struct {
	book *Logbook
	id   string
}

// Order returns the journal for an order. A nil logbook yields a journal
// that drops everything.
func (l *Logbook) Order(id string) Journal {
	return Journal{book: l, id: id}
}

// ID returns the order the journal writes for.
func (j Journal) ID() string { return j.id }

// Opened records that the detail screen was opened.
func (j Journal) Opened() {
	j.write(LevelInfo, "opened")
}

// StatusChanged records a status transition observed by polling.
func (j Journal) StatusChanged(from, to fmt.Stringer) {
	j.write(LevelInfo, fmt.Sprintf("%s -> %s", from, to))
}

// Submitting records a confirmed command.
func (j Journal) Submitting(action string) {
	j.write(LevelInfo, "submitting "+action)
}

// RatingRequested records that the completion prompt was opened.
func (j Journal) RatingRequested() {
	j.write(LevelInfo, "completed, asking for a rating")
}

// Notice records a notice shown on the order screen.
func (j Journal) Notice(failed bool, text string) {
	level := LevelInfo
	if failed {
		level = LevelError
	}
	j.write(level, "notice: "+text)
}

func (j Journal) write(level Level, message string) {
	if j.book == nil {
		return
	}
	j.book.Append(level, fmt.Sprintf("#%s %s", j.id, message))
}
