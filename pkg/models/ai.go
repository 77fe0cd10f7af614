// Package models contains shared data models used across the applyflow codebase.
package models

import "context"

// Customizer is the core interface every AI integration must implement.
// Never call a specific provider directly — always inject this interface.
type Customizer interface {
	// CustomizeCV rewrites a parsed CV to fit one job description.
	CustomizeCV(ctx context.Context, cv ParsedCV, jobDescription string) (CustomizedCV, error)
	// GenerateCoverLetter writes a cover letter for the given CV, job and company.
	GenerateCoverLetter(ctx context.Context, cv ParsedCV, jobDescription, company string) (string, error)
	// Name returns the provider identifier (e.g., "openai", "mock").
	Name() string
}
