package emu

// scheduler picks strands round-robin. It is a cursor into the strand array
// that skips strands whose enable bit is clear.
type scheduler struct {
	cursor     int
	numStrands int
}

// next returns the first enabled strand at or after the cursor.
func (s *scheduler) next(mask uint32) (int, bool) {
	for i := 0; i < s.numStrands; i++ {
		id := (s.cursor + i) % s.numStrands
		if mask&(1<<uint(id)) != 0 {
			return id, true
		}
	}
	return 0, false
}

// advance moves the cursor past a strand that just executed.
func (s *scheduler) advance(id int) {
	s.cursor = (id + 1) % s.numStrands
}
