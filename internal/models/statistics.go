package models

import "sort"

// CompletedParticipation is one finished session as seen by a single user
type CompletedParticipation struct {
	SessionID      string
	Level          string
	Score          int
	TotalQuestions int
	Rank           int
}

// LevelStatistics aggregates a user's results for one level tag
type LevelStatistics struct {
	Level           string  `json:"level"`
	Sessions        int     `json:"sessions"`
	TotalQuestions  int     `json:"totalQuestions"`
	TotalCorrect    int     `json:"totalCorrect"`
	AverageScore    float64 `json:"averageScore"`
	AverageAccuracy float64 `json:"averageAccuracy"`
}

// UserStatistics aggregates a user's results across completed sessions
type UserStatistics struct {
	TotalSessions   int               `json:"totalSessions"`
	TotalQuestions  int               `json:"totalQuestions"`
	TotalCorrect    int               `json:"totalCorrect"`
	AverageScore    float64           `json:"averageScore"`
	AverageAccuracy float64           `json:"averageAccuracy"`
	BestScore       int               `json:"bestScore"`
	BestAccuracy    float64           `json:"bestAccuracy"`
	FirstPlaces     int               `json:"firstPlaces"`
	SecondPlaces    int               `json:"secondPlaces"`
	ThirdPlaces     int               `json:"thirdPlaces"`
	ByLevel         []LevelStatistics `json:"byLevel"`
}

// CalculateStatistics aggregates completed participations. Accuracy values
// are fractions in [0, 1]; averages are zero when there is nothing to average.
func CalculateStatistics(rows []CompletedParticipation) UserStatistics {
	stats := UserStatistics{ByLevel: []LevelStatistics{}}
	levels := make(map[string]*LevelStatistics)

	for _, row := range rows {
		stats.TotalSessions++
		stats.TotalQuestions += row.TotalQuestions
		stats.TotalCorrect += row.Score

		if row.Score > stats.BestScore {
			stats.BestScore = row.Score
		}
		if row.TotalQuestions > 0 {
			if acc := float64(row.Score) / float64(row.TotalQuestions); acc > stats.BestAccuracy {
				stats.BestAccuracy = acc
			}
		}

		switch row.Rank {
		case 1:
			stats.FirstPlaces++
		case 2:
			stats.SecondPlaces++
		case 3:
			stats.ThirdPlaces++
		}

		level := row.Level
		if level == "" {
			level = DefaultLevel
		}
		ls, ok := levels[level]
		if !ok {
			ls = &LevelStatistics{Level: level}
			levels[level] = ls
		}
		ls.Sessions++
		ls.TotalQuestions += row.TotalQuestions
		ls.TotalCorrect += row.Score
	}

	if stats.TotalSessions > 0 {
		stats.AverageScore = float64(stats.TotalCorrect) / float64(stats.TotalSessions)
	}
	if stats.TotalQuestions > 0 {
		stats.AverageAccuracy = float64(stats.TotalCorrect) / float64(stats.TotalQuestions)
	}

	for _, ls := range levels {
		ls.AverageScore = float64(ls.TotalCorrect) / float64(ls.Sessions)
		if ls.TotalQuestions > 0 {
			ls.AverageAccuracy = float64(ls.TotalCorrect) / float64(ls.TotalQuestions)
		}
		stats.ByLevel = append(stats.ByLevel, *ls)
	}
	sort.Slice(stats.ByLevel, func(i, j int) bool {
		return stats.ByLevel[i].Level < stats.ByLevel[j].Level
	})

	return stats
}

// CompetitionRanks assigns "1224" style ranks to scores already sorted in
// descending order: each rank is one plus the number of strictly higher scores.
func CompetitionRanks(sortedScores []int) []int {
	ranks := make([]int, len(sortedScores))
	for i, score := range sortedScores {
		if i > 0 && score == sortedScores[i-1] {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}
