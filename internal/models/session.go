package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a Session
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusLobby     SessionStatus = "lobby"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// DefaultLevel is used when a session is created without a level tag
const DefaultLevel = "general"

// Question is one multiple-choice question of a session
type Question struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Session represents one scheduled, capacity-limited group event
type Session struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Level                string        `json:"level"`
	HostID               string        `json:"hostId"`
	HostName             string        `json:"hostName"`
	Questions            []Question    `json:"questions"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	ScheduledStartTime   time.Time     `json:"scheduledStartTime"`
	ScheduledEndTime     time.Time     `json:"scheduledEndTime"`
	LobbyOpenTime        time.Time     `json:"lobbyOpenTime"`
	DurationMinutes      int           `json:"durationMinutes"`
	MaxParticipants      int           `json:"maxParticipants"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
}

// PublicQuestion is a Question without its correct answer
type PublicQuestion struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer *int     `json:"correctAnswer,omitempty"`
}

// SessionView is the caller-facing representation of a session
type SessionView struct {
	Session
	Questions []PublicQuestion `json:"questions"`
}

// Public returns a view of the session. Correct answers are only included
// when revealAnswers is set (hosts, admins, completed sessions).
func (s *Session) Public(revealAnswers bool) SessionView {
	questions := make([]PublicQuestion, len(s.Questions))
	for i, q := range s.Questions {
		questions[i] = PublicQuestion{Prompt: q.Prompt, Options: q.Options}
		if revealAnswers {
			correct := q.CorrectAnswer
			questions[i].CorrectAnswer = &correct
		}
	}
	return SessionView{Session: *s, Questions: questions}
}

// ApplySchedule derives the end and lobby-open times from the start time,
// the duration and the lobby lead window.
func (s *Session) ApplySchedule(start time.Time, durationMinutes int, lobbyLead time.Duration) {
	start = start.UTC()
	s.ScheduledStartTime = start
	s.DurationMinutes = durationMinutes
	s.ScheduledEndTime = start.Add(time.Duration(durationMinutes) * time.Minute)
	s.LobbyOpenTime = start.Add(-lobbyLead)
}

// ScheduleValid reports whether lobbyOpenTime < scheduledStartTime < scheduledEndTime
func (s *Session) ScheduleValid() bool {
	return s.LobbyOpenTime.Before(s.ScheduledStartTime) && s.ScheduledStartTime.Before(s.ScheduledEndTime)
}

// CorrectAnswers returns the correct option index of every question, in order
func (s *Session) CorrectAnswers() []int {
	correct := make([]int, len(s.Questions))
	for i, q := range s.Questions {
		correct[i] = q.CorrectAnswer
	}
	return correct
}

// ValidateQuestions checks that every question has a prompt, at least two
// options and a correct answer that indexes one of them.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("at least one question is required")
	}
	for i, q := range questions {
		if q.Prompt == "" {
			return fmt.Errorf("question %d: prompt is required", i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d: at least two options are required", i)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return fmt.Errorf("question %d: correct answer %d is not a valid option", i, q.CorrectAnswer)
		}
	}
	return nil
}

// EncodeQuestions serializes questions for storage
func EncodeQuestions(questions []Question) (string, error) {
	data, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("failed to encode questions: %w", err)
	}
	return string(data), nil
}

// DecodeQuestions parses the stored questions column and validates its shape
func DecodeQuestions(raw string) ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	if err := ValidateQuestions(questions); err != nil {
		return nil, fmt.Errorf("stored questions are invalid: %w", err)
	}
	return questions, nil
}
