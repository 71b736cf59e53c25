package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/schemata/internal/domain"
	domainmocks "gooze.dev/pkg/schemata/internal/domain/mocks"
	m "gooze.dev/pkg/schemata/internal/model"
)

func TestTestCmd(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	mockWorkflow.On("Baseline", mock.Anything, mock.MatchedBy(func(args domain.BaselineArgs) bool {
		return len(args.Paths) == 1 &&
			args.Paths[0] == m.Path("./examples/robobar") &&
			args.Timeout == 45*time.Second
	})).Return(nil)

	_, err := executeWith(t, mockWorkflow, "test", "--baseline-timeout", "45s", "./examples/robobar")
	require.NoError(t, err)
}

func TestTestCmd_Failure(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)
	failed := errors.New("1 of 2 tests failed")

	mockWorkflow.On("Baseline", mock.Anything, mock.Anything).Return(failed)

	_, err := executeWith(t, mockWorkflow, "test", "./...")
	require.ErrorIs(t, err, failed)
}
