// Package mocks provides testify mocks of the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gooze.dev/pkg/schemata/internal/domain"
	m "gooze.dev/pkg/schemata/internal/model"
)

// MockWorkflow is a mock type for the Workflow type.
type MockWorkflow struct {
	mock.Mock
}

// Estimate provides a mock function with given fields: ctx, args.
func (_m *MockWorkflow) Estimate(ctx context.Context, args domain.EstimateArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Estimate")
	}

	if rf, ok := ret.Get(0).(func(context.Context, domain.EstimateArgs) error); ok {
		return rf(ctx, args)
	}

	return ret.Error(0)
}

// Test provides a mock function with given fields: ctx, args.
func (_m *MockWorkflow) Test(ctx context.Context, args domain.TestArgs) (m.Summary, error) {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Test")
	}

	if rf, ok := ret.Get(0).(func(context.Context, domain.TestArgs) (m.Summary, error)); ok {
		return rf(ctx, args)
	}

	var r0 m.Summary
	if v, ok := ret.Get(0).(m.Summary); ok {
		r0 = v
	}

	return r0, ret.Error(1)
}

// Baseline provides a mock function with given fields: ctx, args.
func (_m *MockWorkflow) Baseline(ctx context.Context, args domain.BaselineArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Baseline")
	}

	if rf, ok := ret.Get(0).(func(context.Context, domain.BaselineArgs) error); ok {
		return rf(ctx, args)
	}

	return ret.Error(0)
}

// Show provides a mock function with given fields: ctx, args.
func (_m *MockWorkflow) Show(ctx context.Context, args domain.ShowArgs) error {
	ret := _m.Called(ctx, args)

	if len(ret) == 0 {
		panic("no return value specified for Show")
	}

	if rf, ok := ret.Get(0).(func(context.Context, domain.ShowArgs) error); ok {
		return rf(ctx, args)
	}

	return ret.Error(0)
}

// NewMockWorkflow creates a new instance of MockWorkflow. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	mock := &MockWorkflow{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
