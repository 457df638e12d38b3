package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/memetag/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClearRequiresConfirmation(t *testing.T) {
	_, err := execute(t, "clear")
	assert.ErrorIs(t, err, errClearNotConfirmed)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "dump")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "retag")
	assert.Error(t, err)
	_, err = execute(t, "delete", "a", "b")
	assert.Error(t, err)
}

func TestPrintJob(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	done := start.Add(1500 * time.Millisecond)
	var out bytes.Buffer
	printJob(&out, &domain.MaintenanceJob{
		Kind:        domain.JobRescan,
		Status:      domain.JobStatusCompleted,
		Succeeded:   3,
		Failed:      1,
		StartedAt:   start,
		CompletedAt: &done,
		ErrorLog:    "broken.png: invalid image\n",
	})
	assert.Equal(t, "2024-05-01T12:00:00Z\trescan\tcompleted\t1.5s\tok=3 skipped=0 failed=1\n\tbroken.png: invalid image\n", out.String())
}
