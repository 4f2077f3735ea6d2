// CodeLab presence registry
// Online student and instructor sets with join/leave broadcasts

package fabric

import (
	"sync"
	"time"

	"codelab/internal/metrics"
	"codelab/pkg/models"
)

// PresenceEntry describes one online user as seen by instructors.
type PresenceEntry struct {
	UserID   uint      `json:"userId"`
	UserName string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Presence tracks who is online, keyed by connection id so one user with two
// tabs counts once per connection.
type Presence struct {
	hub *Hub

	mu          sync.Mutex
	students    map[string]PresenceEntry
	instructors map[string]PresenceEntry
}

func newPresence(hub *Hub) *Presence {
	return &Presence{
		hub:         hub,
		students:    make(map[string]PresenceEntry),
		instructors: make(map[string]PresenceEntry),
	}
}

// OnlineCountPayload is broadcast to the instructor role room whenever the
// online student set changes.
type OnlineCountPayload struct {
	StudentCount    int             `json:"studentCount"`
	InstructorCount int             `json:"instructorCount"`
	Students        []PresenceEntry `json:"students"`
}

// add records a connection as online and, for students, notifies instructors.
func (p *Presence) add(connID string, role string, entry PresenceEntry) {
	p.mu.Lock()
	switch role {
	case models.RoleStudent:
		p.students[connID] = entry
	case models.RoleInstructor:
		p.instructors[connID] = entry
	default:
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if role == models.RoleStudent {
		p.broadcast()
	}
}

// remove drops a connection; if a student left, instructors get an update.
func (p *Presence) remove(connID string) {
	p.mu.Lock()
	_, wasStudent := p.students[connID]
	delete(p.students, connID)
	delete(p.instructors, connID)
	p.mu.Unlock()

	if wasStudent {
		p.broadcast()
	}
}

// broadcast sends the current counts and student list to the instructor role
// room.
func (p *Presence) broadcast() {
	snap := p.Snapshot()
	metrics.Get().OnlineStudentsGauge.Set(float64(snap.StudentCount))
	metrics.Get().OnlineInstructorsGauge.Set(float64(snap.InstructorCount))
	p.hub.EmitToAllInstructors(EventOnlineCountUpdate, snap)
}

// Snapshot returns the current presence counts and student list.
func (p *Presence) Snapshot() OnlineCountPayload {
	p.mu.Lock()
	defer p.mu.Unlock()

	students := make([]PresenceEntry, 0, len(p.students))
	for _, e := range p.students {
		students = append(students, e)
	}
	return OnlineCountPayload{
		StudentCount:    len(p.students),
		InstructorCount: len(p.instructors),
		Students:        students,
	}
}
