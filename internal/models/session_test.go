package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func threeQuestions() []Question {
	return []Question{
		{Prompt: "2+2", Options: []string{"4", "5", "6"}, CorrectAnswer: 0},
		{Prompt: "3*3", Options: []string{"6", "9", "12"}, CorrectAnswer: 1},
		{Prompt: "10/2", Options: []string{"2", "4", "5", "8"}, CorrectAnswer: 2},
	}
}

func TestScoreAnswers(t *testing.T) {
	questions := threeQuestions()

	tests := []struct {
		name    string
		answers []*int
		want    int
	}{
		{name: "example 0,1,3", answers: []*int{intPtr(0), intPtr(1), intPtr(3)}, want: 2},
		{name: "all correct", answers: []*int{intPtr(0), intPtr(1), intPtr(2)}, want: 3},
		{name: "none answered", answers: NewAnswers(3), want: 0},
		{name: "partial", answers: []*int{nil, intPtr(1), nil}, want: 1},
		{name: "short slice", answers: []*int{intPtr(0)}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreAnswers(questions, tt.answers))
		})
	}
}

func TestDecodeAnswers(t *testing.T) {
	questions := threeQuestions()

	answers, err := DecodeAnswers(`[0,null,2]`, questions)
	require.NoError(t, err)
	require.Len(t, answers, 3)
	assert.Nil(t, answers[1])
	assert.Equal(t, 2, *answers[2])

	_, err = DecodeAnswers(`[0,1]`, questions)
	assert.Error(t, err, "slot count mismatch")

	_, err = DecodeAnswers(`[0,7,null]`, questions)
	assert.Error(t, err, "out of range option")

	_, err = DecodeAnswers(`{"a":1}`, questions)
	assert.Error(t, err)
}

func TestEncodeAnswers(t *testing.T) {
	raw, err := EncodeAnswers([]*int{intPtr(1), nil})
	require.NoError(t, err)
	assert.Equal(t, "[1,null]", raw)

	raw, err = EncodeAnswers(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestQuestionsRoundTripValidation(t *testing.T) {
	raw, err := EncodeQuestions(threeQuestions())
	require.NoError(t, err)

	decoded, err := DecodeQuestions(raw)
	require.NoError(t, err)
	assert.Equal(t, threeQuestions(), decoded)

	_, err = DecodeQuestions(`[{"prompt":"x","options":["a"],"correctAnswer":0}]`)
	assert.Error(t, err)
}

func TestValidateQuestions(t *testing.T) {
	tests := []struct {
		name      string
		questions []Question
		wantErr   bool
	}{
		{name: "valid", questions: threeQuestions()},
		{name: "empty", questions: nil, wantErr: true},
		{name: "missing prompt", questions: []Question{{Options: []string{"a", "b"}}}, wantErr: true},
		{name: "one option", questions: []Question{{Prompt: "q", Options: []string{"a"}}}, wantErr: true},
		{name: "negative correct", questions: []Question{{Prompt: "q", Options: []string{"a", "b"}, CorrectAnswer: -1}}, wantErr: true},
		{name: "correct out of range", questions: []Question{{Prompt: "q", Options: []string{"a", "b"}, CorrectAnswer: 2}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestions(tt.questions)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQuestions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplySchedule(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	s := &Session{}
	s.ApplySchedule(start, 60, 15*time.Minute)

	assert.Equal(t, time.UTC, s.ScheduledStartTime.Location())
	assert.Equal(t, start.Add(time.Hour).UTC(), s.ScheduledEndTime)
	assert.Equal(t, start.Add(-15*time.Minute).UTC(), s.LobbyOpenTime)
	assert.True(t, s.ScheduleValid())
}

func TestPublicHidesCorrectAnswers(t *testing.T) {
	s := &Session{ID: "s-1", Questions: threeQuestions()}

	hidden := s.Public(false)
	require.Len(t, hidden.Questions, 3)
	for _, q := range hidden.Questions {
		assert.Nil(t, q.CorrectAnswer)
	}

	revealed := s.Public(true)
	require.NotNil(t, revealed.Questions[2].CorrectAnswer)
	assert.Equal(t, 2, *revealed.Questions[2].CorrectAnswer)
	assert.Equal(t, []int{0, 1, 2}, s.CorrectAnswers())
}

func TestCalculateStatistics(t *testing.T) {
	rows := []CompletedParticipation{
		{SessionID: "a", Level: "beginner", Score: 8, TotalQuestions: 10, Rank: 1},
		{SessionID: "b", Level: "beginner", Score: 5, TotalQuestions: 10, Rank: 3},
		{SessionID: "c", Level: "advanced", Score: 4, TotalQuestions: 5, Rank: 2},
		{SessionID: "d", Level: "", Score: 0, TotalQuestions: 5, Rank: 7},
	}

	stats := CalculateStatistics(rows)

	assert.Equal(t, 4, stats.TotalSessions)
	assert.Equal(t, 30, stats.TotalQuestions)
	assert.Equal(t, 17, stats.TotalCorrect)
	assert.InDelta(t, 17.0/4.0, stats.AverageScore, 1e-9)
	assert.InDelta(t, 17.0/30.0, stats.AverageAccuracy, 1e-9)
	assert.Equal(t, 8, stats.BestScore)
	assert.InDelta(t, 0.8, stats.BestAccuracy, 1e-9)
	assert.Equal(t, 1, stats.FirstPlaces)
	assert.Equal(t, 1, stats.SecondPlaces)
	assert.Equal(t, 1, stats.ThirdPlaces)

	require.Len(t, stats.ByLevel, 3)
	assert.Equal(t, "advanced", stats.ByLevel[0].Level)
	assert.Equal(t, "beginner", stats.ByLevel[1].Level)
	assert.Equal(t, 2, stats.ByLevel[1].Sessions)
	assert.InDelta(t, 0.65, stats.ByLevel[1].AverageAccuracy, 1e-9)
	assert.Equal(t, DefaultLevel, stats.ByLevel[2].Level)
}

func TestCalculateStatisticsEmpty(t *testing.T) {
	stats := CalculateStatistics(nil)
	assert.Equal(t, 0, stats.TotalSessions)
	assert.Zero(t, stats.AverageAccuracy)
	assert.NotNil(t, stats.ByLevel)
}

func TestCompetitionRanks(t *testing.T) {
	assert.Equal(t, []int{1, 2, 2, 4}, CompetitionRanks([]int{9, 7, 7, 3}))
	assert.Equal(t, []int{1, 1, 1}, CompetitionRanks([]int{5, 5, 5}))
	assert.Empty(t, CompetitionRanks(nil))
}
