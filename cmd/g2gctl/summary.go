package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"

	"goal2goal/internal/model"
)

func printRunSummary(record model.RunRecord) {
	fmt.Println(aurora.Green(fmt.Sprintf("[%s] run %s finished",
		strings.ToUpper(record.Mode), record.ID)))
	fmt.Printf("  env: %s | episodes: %s | steps: %s | wall: %s\n",
		record.Env,
		humanize.Comma(int64(record.Episodes)),
		humanize.Comma(int64(record.TotalSteps)),
		record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond))
	fmt.Printf("  mean reward: %.3f | mean q: %.3f | success: %.1f%%\n",
		record.MeanReward, record.MeanQ, 100*record.SuccessRate)
	if record.BestScore != 0 {
		fmt.Println(aurora.Blue(fmt.Sprintf("  best eval score: %.3f", record.BestScore)))
	}
}
