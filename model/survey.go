package model

// Survey is one questionnaire loaded from the configuration sheet. Surveys
// are immutable once loaded; a catalog reload replaces the whole slice.
type Survey struct {
	Title     string
	Range     string // sheet range holding the question rows, opaque here
	Questions []string
	Choices   [][]string // parallel to Questions; nil entry means free text
}

// Question returns the prompt at step, or false when the survey is over.
func (s Survey) Question(step int) (string, bool) {
	if step < 0 || step >= len(s.Questions) {
		return "", false
	}
	return s.Questions[step], true
}

// ChoicesAt returns the option labels for step, or nil for a free-text step.
func (s Survey) ChoicesAt(step int) []string {
	if step < 0 || step >= len(s.Choices) {
		return nil
	}
	return s.Choices[step]
}

// PendingInvitation is one un-sent row from the pending sheet.
type PendingInvitation struct {
	Phone       string
	SurveyTitle string
	Row         int // 1-based row in the pending sheet, target for status writes
}

// SendResult is the outcome of a single pending-invitation send.
type SendResult struct {
	Success     bool
	Phone       string
	SurveyTitle string
	Err         string
}

// CellUpdate is a single cell write in "Sheet!C4" notation.
type CellUpdate struct {
	Cell  string
	Value string
}
