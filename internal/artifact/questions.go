package artifact

import "adflow/internal/types"

// Question is one thing the project manager wants the client to answer.
type Question struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	QuestionType string   `json:"question_type,omitempty"` // text|number|select|multiselect
	Options      []string `json:"options,omitempty"`
	Required     bool     `json:"required,omitempty"`
	Answer       string   `json:"answer,omitempty"`
}

// Questions is the content of a questions artifact. The brief travels with it
// so a paused run can be rebuilt from the artifact store alone.
type Questions struct {
	Questions   []Question       `json:"questions"`
	AllAnswered bool             `json:"all_answered"`
	Brief       *types.Brief     `json:"brief,omitempty"`
	Interview   *types.Interview `json:"interview,omitempty"`
}

// WithAnswers returns a copy with the interview attached and per-question
// answers filled from the raw answer map.
func (q Questions) WithAnswers(iv types.Interview) Questions {
	out := Questions{
		Questions:   make([]Question, len(q.Questions)),
		AllAnswered: true,
		Brief:       q.Brief,
	}
	copy(out.Questions, q.Questions)
	for i := range out.Questions {
		if ans, ok := iv.Answers[out.Questions[i].ID]; ok {
			out.Questions[i].Answer = ans
		}
	}
	ivc := iv.Clone()
	out.Interview = &ivc
	return out
}

// Hints maps each question id to its text, for classifying answers keyed by
// id.
func (q Questions) Hints() map[string]string {
	out := make(map[string]string, len(q.Questions))
	for _, qq := range q.Questions {
		if qq.ID != "" {
			out[qq.ID] = qq.Question
		}
	}
	return out
}

// Analysis is the structured result of the analyze call.
type Analysis struct {
	Brief               types.Brief `json:"brief"`
	Questions           []Question  `json:"questions"`
	InitialObservations string      `json:"initial_observations,omitempty"`
}
