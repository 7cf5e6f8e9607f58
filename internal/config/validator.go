package config

import (
	"fmt"

	"ing.wik/watchz/internal/notify"
)

// ValidationResult separates blocking validation errors from non-blocking
// warnings.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid reports whether there are no validation errors. Warnings do not
// affect validity.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// HasWarnings reports whether there are any validation warnings.
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// AddError appends an error message.
func (vr *ValidationResult) AddError(msg string) {
	vr.Errors = append(vr.Errors, msg)
}

// AddWarning appends a warning message.
func (vr *ValidationResult) AddWarning(msg string) {
	vr.Warnings = append(vr.Warnings, msg)
}

// Merge folds other's errors and warnings into vr.
func (vr *ValidationResult) Merge(other ValidationResult) {
	vr.Errors = append(vr.Errors, other.Errors...)
	vr.Warnings = append(vr.Warnings, other.Warnings...)
}

var validNotificationLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// ValidateNotificationLevel checks level against the four accepted values.
func ValidateNotificationLevel(level string) ValidationResult {
	result := ValidationResult{}
	if !validNotificationLevels[level] {
		result.AddError(fmt.Sprintf("invalid notification level %q: must be one of debug, info, warn, error", level))
	}
	return result
}

// ValidateNotificationURLs checks that every URL in urls parses into a
// usable notifier.
func ValidateNotificationURLs(urls []string) ValidationResult {
	result := ValidationResult{}
	for _, u := range urls {
		if _, err := notify.Parse(u); err != nil {
			result.AddError(fmt.Sprintf("invalid notification URL %q: %v", u, err))
		}
	}
	return result
}

// ValidateConfig validates a fully-assembled Config, aggregating results
// from every sub-validation.
func ValidateConfig(cfg Config) ValidationResult {
	result := ValidationResult{}

	if cfg.Interval <= 0 {
		result.AddError("interval must be greater than zero")
	}
	if cfg.StopTimeout < 0 {
		result.AddError("stop-timeout must not be negative")
	}
	if cfg.LabelEnable && cfg.Scope == "" {
		result.AddWarning("label-enable is set without a scope: every labeled container on the host will be considered")
	}
	if cfg.RunOnce && cfg.RollingRestart {
		result.AddWarning("rolling-restart combined with run-once only spaces out the updates within the single pass")
	}

	result.Merge(ValidateNotificationLevel(cfg.NotificationLevel))
	result.Merge(ValidateNotificationURLs(cfg.NotificationURLs))

	return result
}
