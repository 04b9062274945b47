package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"

	"curator/internal/stage"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression or descriptor such as "@every 5m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRecheck(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if len(c.Paths.LibraryRoots) == 0 {
		return errors.New("paths.library_roots must include at least one directory")
	}
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.SchedulerThreads <= 0 {
		return errors.New("workflow.scheduler_threads must be positive")
	}
	if err := validateSchedule("workflow.trigger_all_schedule", c.Workflow.TriggerAllSchedule); err != nil {
		return err
	}
	return validateSchedule("workflow.staging_schedule", c.Workflow.StagingSchedule)
}

func (c *Config) validateRecheck() error {
	if err := validateSchedule("recheck.schedule", c.Recheck.Schedule); err != nil {
		return err
	}
	if c.Recheck.MaxAgeDays < 0 {
		return errors.New("recheck.max_age_days must be >= 0")
	}
	for _, name := range c.Recheck.Stages {
		if !stage.Name(name).Valid() {
			return fmt.Errorf("recheck.stages: unknown stage %q", name)
		}
	}
	return nil
}

func (c *Config) validateStages() error {
	names := make([]string, 0, len(c.Stages))
	for name := range c.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !stage.Name(name).Valid() {
			return fmt.Errorf("stages.%s: unknown stage", name)
		}
		override := c.Stages[name]
		if override.MaxResults != nil && *override.MaxResults <= 0 {
			return fmt.Errorf("stages.%s.max_results must be positive", name)
		}
		if override.TickIntervalMS != nil && *override.TickIntervalMS <= 0 {
			return fmt.Errorf("stages.%s.tick_interval_ms must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	for name := range c.Logging.StageOverrides {
		if !stage.Name(name).Valid() {
			return fmt.Errorf("logging.stage_overrides: unknown stage %q", name)
		}
	}
	return nil
}

// validateSchedule accepts an empty value, which disables the job.
func validateSchedule(key, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := ParseSchedule(spec); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
