package ai

import (
	"context"

	"github.com/applyflow/applyflow/pkg/models"
)

// MockCustomizer satisfies models.Customizer for tests and local development.
type MockCustomizer struct {
	Name_           string
	CustomizeFunc   func(ctx context.Context, cv models.ParsedCV, jobDescription string) (models.CustomizedCV, error)
	CoverLetterFunc func(ctx context.Context, cv models.ParsedCV, jobDescription, company string) (string, error)
}

func (m *MockCustomizer) Name() string { return m.Name_ }

func (m *MockCustomizer) CustomizeCV(ctx context.Context, cv models.ParsedCV, jobDescription string) (models.CustomizedCV, error) {
	if m.CustomizeFunc != nil {
		return m.CustomizeFunc(ctx, cv, jobDescription)
	}
	return models.CustomizedCV{ParsedCV: cv}, nil
}

func (m *MockCustomizer) GenerateCoverLetter(ctx context.Context, cv models.ParsedCV, jobDescription, company string) (string, error) {
	if m.CoverLetterFunc != nil {
		return m.CoverLetterFunc(ctx, cv, jobDescription, company)
	}
	return "", nil
}

// NewMockCustomizer returns a MockCustomizer with sensible default responses.
func NewMockCustomizer() *MockCustomizer {
	return &MockCustomizer{
		Name_: "mock",
		CustomizeFunc: func(_ context.Context, cv models.ParsedCV, _ string) (models.CustomizedCV, error) {
			out := models.CustomizedCV{ParsedCV: cv}
			if len(cv.Skills) > 0 {
				out.Highlights = cv.Skills[:1]
			}
			if out.Summary == "" {
				out.Summary = "Experienced candidate with a relevant background."
			}
			return out, nil
		},
		CoverLetterFunc: func(_ context.Context, cv models.ParsedCV, _, company string) (string, error) {
			return "Dear " + company + " hiring team,\n\nI am excited to apply. " +
				"My background makes me a strong fit for this role.\n\nBest regards,\n" + cv.FullName, nil
		},
	}
}

// NewFailingCustomizer returns a MockCustomizer that always returns the given error.
func NewFailingCustomizer(err error) *MockCustomizer {
	return &MockCustomizer{
		Name_: "mock-failing",
		CustomizeFunc: func(context.Context, models.ParsedCV, string) (models.CustomizedCV, error) {
			return models.CustomizedCV{}, err
		},
		CoverLetterFunc: func(context.Context, models.ParsedCV, string, string) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutCustomizer returns a MockCustomizer that blocks until context is cancelled.
func NewTimeoutCustomizer() *MockCustomizer {
	return &MockCustomizer{
		Name_: "mock-timeout",
		CustomizeFunc: func(ctx context.Context, _ models.ParsedCV, _ string) (models.CustomizedCV, error) {
			<-ctx.Done()
			return models.CustomizedCV{}, ErrInferenceTimeout
		},
		CoverLetterFunc: func(ctx context.Context, _ models.ParsedCV, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockCustomizer implements Customizer.
var _ models.Customizer = (*MockCustomizer)(nil)
