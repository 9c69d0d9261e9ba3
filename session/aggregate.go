// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import "github.com/danielhkuo/livepoll/models"

// Aggregate turns per-option answer counts into the results payload: one
// entry per option in option order, percentages of the total (0 when nobody
// answered), and the correct option if one is flagged.
func Aggregate(q models.Question, counts map[string]int) models.Results {
	total := 0
	for _, o := range q.Options {
		total += counts[o.ID]
	}

	results := make([]models.OptionResult, 0, len(q.Options))
	for _, o := range q.Options {
		count := counts[o.ID]
		percentage := 0.0
		if total > 0 {
			percentage = float64(count) / float64(total) * 100
		}
		results = append(results, models.OptionResult{
			OptionID:   o.ID,
			Count:      count,
			Percentage: percentage,
		})
	}

	return models.Results{
		QuestionID:      q.ID,
		Results:         results,
		TotalAnswers:    total,
		CorrectOptionID: q.CorrectOptionID(),
	}
}
