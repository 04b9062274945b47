package staging

import (
	"context"

	"curator/internal/config"
	"curator/internal/workflow"
)

// JobName is the periodic job that rescans the library roots.
const JobName = "staging"

// RegisterJob schedules periodic scans on the manager's cron.
func RegisterJob(m *workflow.Manager, scanner *Scanner) {
	m.AddJob(JobName, func(c *config.Config) string { return c.Workflow.StagingSchedule }, func(ctx context.Context) error {
		_, err := scanner.Scan(ctx)
		return err
	})
}
