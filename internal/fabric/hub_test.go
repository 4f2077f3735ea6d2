package fabric

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codelab/pkg/models"
)

func newTestClient(h *Hub, id string, userID uint, name, role string) *Client {
	c := &Client{
		ID:       id,
		UserID:   userID,
		UserName: name,
		Role:     role,
		JoinedAt: time.Now(),
		send:     make(chan []byte, 16),
		hub:      h,
		rooms:    make(map[string]bool),
	}
	h.register(c)
	return c
}

// drain collects every message currently queued on a client.
func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	for {
		select {
		case raw := <-c.send:
			var msg Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestEmitToLabSessionReachesOnlyRoomMembers(t *testing.T) {
	h := NewHub()
	inRoom := newTestClient(h, "a", 1, "Ana", models.RoleStudent)
	outside := newTestClient(h, "b", 2, "Ben", models.RoleStudent)
	h.Join(inRoom, RoomLabSession(7))

	h.EmitToLabSession(7, "activity-created", map[string]uint{"activityId": 3})

	got := drain(t, inRoom)
	require.Len(t, got, 1)
	assert.Equal(t, "activity-created", got[0].Event)
	assert.Empty(t, drain(t, outside))
}

func TestEmitDeliversOncePerConnection(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "a", 1, "Ana", models.RoleStudent)
	h.Join(c, RoomStudent(1))
	h.Join(c, RoomInstructor(1))

	// EmitToUser targets both per-user rooms; membership in both must not
	// double-deliver.
	h.EmitToUser(1, "my-submission-result", nil)

	assert.Len(t, drain(t, c), 1)
}

func TestRoleRoomFanOut(t *testing.T) {
	h := NewHub()
	student := newTestClient(h, "s", 1, "Ana", models.RoleStudent)
	instructor := newTestClient(h, "i", 2, "Ira", models.RoleInstructor)
	h.Join(student, RoomRole(models.RoleStudent))
	h.Join(instructor, RoomRole(models.RoleInstructor))

	h.EmitToAllStudents("lab-session-activated", nil)

	assert.Len(t, drain(t, student), 1)
	assert.Empty(t, drain(t, instructor))
}

func TestUnregisterRemovesRoomsAndPresence(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "a", 1, "Ana", models.RoleStudent)
	h.Join(c, RoomRole(models.RoleStudent))
	h.Join(c, RoomStudent(1))
	h.Join(c, RoomLabSession(7))
	h.presence.add(c.ID, c.Role, PresenceEntry{UserID: 1, UserName: "Ana"})

	require.True(t, h.UserOnline(1))
	require.Equal(t, 1, h.RoomSize(RoomLabSession(7)))

	h.unregister(c)

	assert.False(t, h.UserOnline(1))
	assert.Zero(t, h.RoomSize(RoomLabSession(7)))
	assert.Zero(t, h.ConnectionCount())
	assert.Zero(t, h.Presence().Snapshot().StudentCount)

	// Second teardown of the same connection is a no-op.
	h.unregister(c)
}

func TestEmitAfterDisconnectIsDiscarded(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "a", 1, "Ana", models.RoleStudent)
	h.Join(c, RoomLabSession(7))

	h.unregister(c)

	// Run goroutines hold the connection directly and keep emitting after
	// teardown; those emits must be dropped, not crash the process.
	c.Emit("sandbox-output", map[string]string{"data": "late stdout"})
	c.Emit("sandbox-done", map[string]int{"exitCode": 0})
	h.EmitToLabSession(7, "activity-created", nil)
}

func TestUserOnline(t *testing.T) {
	h := NewHub()
	assert.False(t, h.UserOnline(1))

	c := newTestClient(h, "a", 1, "Ira", models.RoleInstructor)
	h.Join(c, RoomInstructor(1))
	assert.True(t, h.UserOnline(1))

	h.Leave(c, RoomInstructor(1))
	assert.False(t, h.UserOnline(1))
}

func TestPresenceBroadcastsToInstructors(t *testing.T) {
	h := NewHub()
	instructor := newTestClient(h, "i", 9, "Ira", models.RoleInstructor)
	h.Join(instructor, RoomRole(models.RoleInstructor))

	student := newTestClient(h, "s", 1, "Ana", models.RoleStudent)
	h.presence.add(student.ID, student.Role, PresenceEntry{UserID: 1, UserName: "Ana"})

	got := drain(t, instructor)
	require.Len(t, got, 1)
	assert.Equal(t, EventOnlineCountUpdate, got[0].Event)

	snap := h.Presence().Snapshot()
	assert.Equal(t, 1, snap.StudentCount)
	require.Len(t, snap.Students, 1)
	assert.Equal(t, "Ana", snap.Students[0].UserName)

	// Instructors joining presence does not spam the instructor room.
	h.presence.add(instructor.ID, instructor.Role, PresenceEntry{UserID: 9, UserName: "Ira"})
	assert.Empty(t, drain(t, instructor))
	assert.Equal(t, 1, h.Presence().Snapshot().InstructorCount)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "student-4", RoomStudent(4))
	assert.Equal(t, "instructor-4", RoomInstructor(4))
	assert.Equal(t, "role-student", RoomRole(models.RoleStudent))
	assert.Equal(t, "lab-session-12", RoomLabSession(12))
}
