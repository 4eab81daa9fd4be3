package store

// StudentQuery filters the student listing. Zero values mean "any".
type StudentQuery struct {
	Class  string
	Grade  string
	Search string // case-insensitive substring of name, student id or tag
	Active *bool
	Offset int
	Limit  int // 0 returns every match
}

// AttendanceQuery filters the attendance listing. Day takes precedence
// over the StartDay/EndDay range.
type AttendanceQuery struct {
	Day       string
	StartDay  string
	EndDay    string
	StudentID string
	Status    string
	Class     string
	Grade     string
	Offset    int
	Limit     int
}
