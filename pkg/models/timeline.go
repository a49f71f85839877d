package models

import "time"

// BuildTimeline instantiates a catalog into concrete stages anchored at
// startTime. Each stage's PlannedTime is startTime plus the cumulative
// duration up to and including that stage, so the last stage's PlannedTime is
// startTime plus the full service commitment. The first stage is marked
// completed at startTime.
//
// The builder is pure: identical inputs always produce identical timelines,
// and no clock is read beyond the supplied startTime.
func BuildTimeline(catalog []StageTemplate, startTime time.Time) []Stage {
	stages := make([]Stage, 0, len(catalog))
	cursor := startTime

	for i, template := range catalog {
		cursor = cursor.Add(template.Duration)

		stage := Stage{
			Name:            template.Name,
			PlannedDuration: template.Duration,
			PlannedTime:     cursor,
		}

		if i == 0 {
			actual := startTime
			stage.ActualTime = &actual
			stage.Completed = true
		}

		stages = append(stages, stage)
	}

	return stages
}
