// Package scoring holds the question catalog and the pure score arithmetic
// shared by the submission path and the recompute jobs.
package scoring

import (
	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// QuestionType distinguishes rated questions from free-text ones.
type QuestionType string

const (
	QuestionRating QuestionType = "rating"
	QuestionText   QuestionType = "text"
)

// MaxRating is the highest score a rating question accepts.
const MaxRating = 5

// Question is one entry of an evaluation form.
type Question struct {
	Code string       `json:"code"`
	Text string       `json:"text"`
	Type QuestionType `json:"type"`
}

// Form is the ordered question set for an evaluation type.
type Form struct {
	Kind      models.EvaluationType `json:"kind"`
	Questions []Question            `json:"questions"`
	byCode    map[string]Question
}

var studentQuestions = []Question{
	{Code: "SE01", Text: "The instructor communicates the subject matter clearly.", Type: QuestionRating},
	{Code: "SE02", Text: "The instructor provides useful feedback on my performance.", Type: QuestionRating},
	{Code: "SE03", Text: "The instructor is enthusiastic about the subject.", Type: QuestionRating},
	{Code: "SE04", Text: "The course materials (readings, assignments) are relevant to the course goals.", Type: QuestionRating},
	{Code: "SE05", Text: "The course is well-organized.", Type: QuestionRating},
	{Code: "SE06", Text: "What are the strengths of this instructor?", Type: QuestionText},
	{Code: "SE07", Text: "What are the weaknesses of this instructor?", Type: QuestionText},
}

var peerQuestions = []Question{
	{Code: "PEER_Q1", Text: "Prepares and updates teaching materials", Type: QuestionRating},
	{Code: "PEER_Q2", Text: "Updates subject matter continuously", Type: QuestionRating},
	{Code: "PEER_Q3", Text: "Demonstrates subject expertise", Type: QuestionRating},
	{Code: "PEER_Q4", Text: "Engages in research & community services", Type: QuestionRating},
	{Code: "PEER_Q5", Text: "Participates in seminars/workshops", Type: QuestionRating},
	{Code: "PEER_Q6", Text: "Collaborates with colleagues", Type: QuestionRating},
	{Code: "PEER_Q7", Text: "Teamwork attitude", Type: QuestionRating},
	{Code: "PEER_Q8", Text: "Advising and supporting students", Type: QuestionRating},
	{Code: "PEER_Q9", Text: "Contributes to improving teaching-learning", Type: QuestionRating},
	{Code: "PEER_Q10", Text: "Preparedness for new teaching methods", Type: QuestionRating},
	{Code: "PEER_Q11", Text: "Ethical & respectful behavior", Type: QuestionRating},
	{Code: "PEER_Q12", Text: "Follows institutional regulations", Type: QuestionRating},
	{Code: "PEER_Q13", Text: "Demonstrates professionalism", Type: QuestionRating},
	{Code: "PEER_Q14", Text: "Time management & consultation hours", Type: QuestionRating},
	{Code: "PEER_S1", Text: "Strengths", Type: QuestionText},
	{Code: "PEER_S2", Text: "Areas for improvement", Type: QuestionText},
}

var departmentHeadQuestions = []Question{
	{Code: "DEPT_Q1", Text: "Course plan quality", Type: QuestionRating},
	{Code: "DEPT_Q2", Text: "Assessment strategy compliance", Type: QuestionRating},
	{Code: "DEPT_Q3", Text: "Documentation submission", Type: QuestionRating},
	{Code: "DEPT_Q4", Text: "Collaboration with department", Type: QuestionRating},
	{Code: "DEPT_Q5", Text: "Professional behavior", Type: QuestionRating},
	{Code: "DEPT_Q6", Text: "Punctuality & scheduling", Type: QuestionRating},
	{Code: "DEPT_Q7", Text: "Contribution to curriculum development", Type: QuestionRating},
	{Code: "DEPT_Q8", Text: "Supports institutional goals", Type: QuestionRating},
	{Code: "DEPT_Q9", Text: "Participation in committees", Type: QuestionRating},
	{Code: "DEPT_Q10", Text: "Communication with staff", Type: QuestionRating},
	{Code: "DEPT_S1", Text: "Strengths", Type: QuestionText},
	{Code: "DEPT_S2", Text: "Improvement Needed", Type: QuestionText},
}

var catalog = map[models.EvaluationType]*Form{
	models.EvaluationTypeStudent:        newForm(models.EvaluationTypeStudent, studentQuestions),
	models.EvaluationTypePeer:           newForm(models.EvaluationTypePeer, peerQuestions),
	models.EvaluationTypeDepartmentHead: newForm(models.EvaluationTypeDepartmentHead, departmentHeadQuestions),
}

func newForm(kind models.EvaluationType, questions []Question) *Form {
	form := &Form{Kind: kind, Questions: questions, byCode: make(map[string]Question, len(questions))}
	for _, q := range questions {
		form.byCode[q.Code] = q
	}
	return form
}

// FormFor returns the question set for an evaluation type.
func FormFor(kind models.EvaluationType) (*Form, bool) {
	form, ok := catalog[kind]
	return form, ok
}

// Lookup finds a question of the form by code.
func (f *Form) Lookup(code string) (Question, bool) {
	q, ok := f.byCode[code]
	return q, ok
}

// RatingQuestions returns the rated questions in form order.
func (f *Form) RatingQuestions() []Question {
	out := make([]Question, 0, len(f.Questions))
	for _, q := range f.Questions {
		if q.Type == QuestionRating {
			out = append(out, q)
		}
	}
	return out
}

// RatingCount is the number of rated questions on the form.
func (f *Form) RatingCount() int {
	return len(f.RatingQuestions())
}

// KindOf reports which form a question code belongs to.
func KindOf(code string) (models.EvaluationType, bool) {
	for _, kind := range models.EvaluationTypes {
		if _, ok := catalog[kind].byCode[code]; ok {
			return kind, true
		}
	}
	return "", false
}

// RatingAnswers keeps only the answers that target rating questions of the form.
func (f *Form) RatingAnswers(answers []models.Answer) []models.Answer {
	out := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		if q, ok := f.byCode[a.QuestionCode]; ok && q.Type == QuestionRating {
			out = append(out, a)
		}
	}
	return out
}
