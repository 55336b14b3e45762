package provision

import (
	"context"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
)

func TestClassifyStackStatus(t *testing.T) {
	testCases := map[string]stackPhase{
		"CREATE_FAILED":                                stackFailed,
		"ROLLBACK_FAILED":                              stackFailed,
		"DELETE_FAILED":                                stackFailed,
		"UPDATE_ROLLBACK_FAILED":                       stackFailed,
		"ROLLBACK_COMPLETE":                            stackFailed,
		"UPDATE_ROLLBACK_COMPLETE":                     stackFailed,
		"CREATE_COMPLETE":                              stackCompleted,
		"UPDATE_COMPLETE":                              stackCompleted,
		"DELETE_COMPLETE":                              stackDeleted,
		"CREATE_IN_PROGRESS":                           stackPending,
		"ROLLBACK_IN_PROGRESS":                         stackPending,
		"DELETE_IN_PROGRESS":                           stackPending,
		"UPDATE_IN_PROGRESS":                           stackPending,
		"UPDATE_COMPLETE_CLEANUP_IN_PROGRESS":          stackPending,
		"UPDATE_ROLLBACK_IN_PROGRESS":                  stackPending,
		"UPDATE_ROLLBACK_COMPLETE_CLEANUP_IN_PROGRESS": stackPending,
		"REVIEW_IN_PROGRESS":                           stackPending,
		"IMPORT_IN_PROGRESS":                           stackPending,
		"":                                             stackPending,
		"create_complete":                              stackPending,
	}

	for status, expected := range testCases {
		t.Run(status, func(t *testing.T) {
			require.Equal(t, expected, classifyStackStatus(status))
		})
	}
}

func TestSelectCacheDisk(t *testing.T) {
	const size = 150 << 30

	match := func(id string) Disk {
		return Disk{ID: id, Node: "/dev/sdf", Status: "present", AllocationType: "available", SizeInBytes: size}
	}

	testCases := []struct {
		name     string
		disks    []Disk
		expected string
	}{
		{
			name: "Unique match",
			disks: []Disk{
				{ID: "root", Node: "/dev/sda1", Status: "present", AllocationType: "USED", SizeInBytes: 80 << 30},
				match("cache"),
			},
			expected: "cache",
		},
		{
			name: "Case insensitive status and allocation",
			disks: []Disk{
				{ID: "cache", Node: "/dev/sdf", Status: "PRESENT", AllocationType: "AVAILABLE", SizeInBytes: size},
			},
			expected: "cache",
		},
		{
			name:     "First of two in listing order",
			disks:    []Disk{match("second-listed-first"), match("first-listed-second")},
			expected: "second-listed-first",
		},
		{
			name: "Missing disk",
			disks: []Disk{
				{ID: "wrong-node", Node: "/dev/sdg", Status: "present", AllocationType: "available", SizeInBytes: size},
				{ID: "wrong-size", Node: "/dev/sdf", Status: "present", AllocationType: "available", SizeInBytes: size - 1},
				{ID: "allocated", Node: "/dev/sdf", Status: "present", AllocationType: "CACHE STORAGE", SizeInBytes: size},
				{ID: "missing", Node: "/dev/sdf", Status: "missing", AllocationType: "available", SizeInBytes: size},
			},
		},
		{
			name: "No disks",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := selectCacheDisk(tc.disks, "/dev/sdf", size)
			if tc.expected == "" {
				jtest.Require(t, ErrNoMatchingDisk, err)
				return
			}

			jtest.RequireNil(t, err)
			require.Equal(t, tc.expected, d.ID)
		})
	}
}

func TestCacheVolumeShape(t *testing.T) {
	node, size, err := cacheVolumeShape("vol-1", []Volume{{
		ID:      "vol-1",
		SizeGiB: 150,
		Attachments: []VolumeAttachment{
			{Device: "/dev/sdf", InstanceID: "i-1"},
			{Device: "/dev/sdg", InstanceID: "i-2"},
		},
	}})
	jtest.RequireNil(t, err)
	require.Equal(t, "/dev/sdf", node)
	require.Equal(t, int64(161061273600), size)

	_, _, err = cacheVolumeShape("vol-1", []Volume{{ID: "vol-1", SizeGiB: 150}})
	jtest.Require(t, ErrVolumeNotAttached, err)

	_, _, err = cacheVolumeShape("vol-1", nil)
	jtest.Require(t, errVolumeNotDescribed, err)
}

func TestStaticUsers(t *testing.T) {
	users := StaticUsers{"u-1": "alice"}

	u, err := users.FindUser(context.Background(), "u-1")
	jtest.RequireNil(t, err)
	require.Equal(t, &User{UID: "u-1", Username: "alice"}, u)

	_, err = users.FindUser(context.Background(), "u-2")
	jtest.Require(t, ErrUserNotFound, err)
}

func TestNewGatewayName(t *testing.T) {
	a, err := newGatewayName()
	jtest.RequireNil(t, err)

	b, err := newGatewayName()
	jtest.RequireNil(t, err)

	require.Len(t, a, 36)
	require.NotEqual(t, a, b)
}
