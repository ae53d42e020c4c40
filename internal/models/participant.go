package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Registration is a user's pre-commitment to attend a session
type Registration struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Participant is a user actively taking a session
type Participant struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Answers     []*int    `json:"answers"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewAnswers returns an answer slice of n unanswered slots
func NewAnswers(n int) []*int {
	return make([]*int, n)
}

// ScoreAnswers counts the slots whose answer matches the question's correct option
func ScoreAnswers(questions []Question, answers []*int) int {
	score := 0
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		if answers[i] != nil && *answers[i] == q.CorrectAnswer {
			score++
		}
	}
	return score
}

// AnsweredCount returns how many slots hold an answer
func AnsweredCount(answers []*int) int {
	n := 0
	for _, a := range answers {
		if a != nil {
			n++
		}
	}
	return n
}

// EncodeAnswers serializes answers for storage; unanswered slots become null
func EncodeAnswers(answers []*int) (string, error) {
	if answers == nil {
		answers = []*int{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(data), nil
}

// DecodeAnswers parses the stored answers column and validates it against the
// session's questions: one slot per question, each answer a valid option index.
func DecodeAnswers(raw string, questions []Question) ([]*int, error) {
	var answers []*int
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	if err := ValidateAnswers(answers, questions); err != nil {
		return nil, err
	}
	return answers, nil
}

// ValidateAnswers checks that answers has one slot per question and that
// every given answer is a valid option index of its question.
func ValidateAnswers(answers []*int, questions []Question) error {
	if len(answers) != len(questions) {
		return fmt.Errorf("stored answers have %d slots, session has %d questions", len(answers), len(questions))
	}
	for i, a := range answers {
		if a != nil && (*a < 0 || *a >= len(questions[i].Options)) {
			return fmt.Errorf("stored answer %d at slot %d is not a valid option", *a, i)
		}
	}
	return nil
}

// ParticipantView is a participant as shown to themselves, with the rank and
// correct answers once the session has completed.
type ParticipantView struct {
	Participant
	Status         SessionStatus `json:"status"`
	TotalQuestions int           `json:"totalQuestions"`
	Answered       int           `json:"answered"`
	Rank           *int          `json:"rank,omitempty"`
	CorrectAnswers []int         `json:"correctAnswers,omitempty"`
}

// LeaderboardEntry is one ranked participant of a completed session
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}
