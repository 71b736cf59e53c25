package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gooze.dev/pkg/schemata/internal/domain"
	m "gooze.dev/pkg/schemata/internal/model"
)

// MockOrchestrator is a mock type for the Orchestrator type.
type MockOrchestrator struct {
	mock.Mock
}

// Run provides a mock function with given fields: ctx, plan.
func (_m *MockOrchestrator) Run(ctx context.Context, plan domain.RunPlan) (m.MutationRun, error) {
	ret := _m.Called(ctx, plan)

	if len(ret) == 0 {
		panic("no return value specified for Run")
	}

	if rf, ok := ret.Get(0).(func(context.Context, domain.RunPlan) (m.MutationRun, error)); ok {
		return rf(ctx, plan)
	}

	var r0 m.MutationRun
	if v, ok := ret.Get(0).(m.MutationRun); ok {
		r0 = v
	}

	return r0, ret.Error(1)
}

// Baseline provides a mock function with given fields: ctx, unit, timeout.
func (_m *MockOrchestrator) Baseline(ctx context.Context, unit *m.SourceUnit, timeout time.Duration) (m.TestRunResult, error) {
	ret := _m.Called(ctx, unit, timeout)

	if len(ret) == 0 {
		panic("no return value specified for Baseline")
	}

	if rf, ok := ret.Get(0).(func(context.Context, *m.SourceUnit, time.Duration) (m.TestRunResult, error)); ok {
		return rf(ctx, unit, timeout)
	}

	var r0 m.TestRunResult
	if v, ok := ret.Get(0).(m.TestRunResult); ok {
		r0 = v
	}

	return r0, ret.Error(1)
}

// NewMockOrchestrator creates a new instance of MockOrchestrator. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockOrchestrator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOrchestrator {
	mock := &MockOrchestrator{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
