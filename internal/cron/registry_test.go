package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	jobA := &stubJob{name: "contract-expiring-soon"}
	jobB := &stubJob{name: "notification-cleanup"}
	registry, err := NewRegistry(jobA, nil, jobB)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, jobA, jobs[0])
	assert.Same(t, jobB, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: "outbox-retention"}, &stubJob{name: "outbox-retention"})
	assert.EqualError(t, err, `cron job "outbox-retention" already registered`)

	registry, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, registry.Register(&stubJob{name: "  "}))
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistry(
		&stubJob{name: "contract-expiring-soon"},
		&stubJob{name: "notification-cleanup"},
		&stubJob{name: "outbox-retention"},
	)
	require.NoError(t, err)

	all, err := registry.Select()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	picked, err := registry.Select("outbox-retention", "contract-expiring-soon")
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "contract-expiring-soon", picked[0].Name())
	assert.Equal(t, "outbox-retention", picked[1].Name())

	_, err = registry.Select("nightly-digest")
	assert.EqualError(t, err, `unknown cron job "nightly-digest"`)
}
