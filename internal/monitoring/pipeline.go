// CodeLab monitoring pipeline
// Ingests batched client events, aggregates per-session counters and raises
// integrity flags for instructor dashboards

package monitoring

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/logging"
	"codelab/internal/metrics"
	"codelab/pkg/models"
)

// Flag kinds raised by the pipeline.
const (
	FlagLargePaste    = "large_paste"
	FlagExternalPaste = "external_paste"
)

// LargePasteThreshold is the paste size in characters above which an
// external paste raises a flag.
const LargePasteThreshold = 50

// StaleTimeout is how long a disconnected student's open monitoring session
// keeps accepting events before the sweeper finalizes it.
const StaleTimeout = 60 * time.Second

// Publisher is the slice of the event fabric the pipeline fans flags out to.
type Publisher interface {
	EmitToLabSession(sessionID uint, event string, payload interface{})
	EmitToAllInstructors(event string, payload interface{})
}

// OnlineChecker reports whether a student currently has a live connection.
type OnlineChecker interface {
	UserOnline(userID uint) bool
}

// Event names emitted on the fabric.
const (
	eventMonitoringUpdate = "monitoring-update"
	eventMonitoringFlag   = "monitoring-flag"
)

// Pipeline buffers per-session state in memory and persists events and
// counter updates as batches arrive.
type Pipeline struct {
	db     *gorm.DB
	pub    Publisher
	online OnlineChecker

	mu   sync.Mutex
	open map[string]*sessionState // monitoringID -> state
}

// sessionState is the in-memory working state of one open window.
type sessionState struct {
	record     *models.MonitoringSession
	lastBlurAt *time.Time
	idleSince  *time.Time
	lastSeen   time.Time
}

func NewPipeline(db *gorm.DB, pub Publisher, online OnlineChecker) *Pipeline {
	return &Pipeline{
		db:     db,
		pub:    pub,
		online: online,
		open:   make(map[string]*sessionState),
	}
}

// Start opens a monitoring window for (student, activity). An already-open
// window for the same pair is finalized first so at most one stays open.
func (p *Pipeline) Start(studentID, activityID, labSessionID uint) (*models.MonitoringSession, error) {
	p.mu.Lock()
	for id, st := range p.open {
		if st.record.StudentID == studentID && st.record.ActivityID == activityID {
			p.mu.Unlock()
			if _, err := p.End(id, st.record.TotalActiveTime); err != nil {
				logging.S().Warnw("could not finalize stale monitoring session",
					"monitoringId", id, "error", err)
			}
			p.mu.Lock()
			break
		}
	}
	p.mu.Unlock()

	record := &models.MonitoringSession{
		MonitoringID: uuid.New().String(),
		StudentID:    studentID,
		ActivityID:   activityID,
		LabSessionID: labSessionID,
		StartedAt:    time.Now().UTC(),
		Flags:        []string{},
	}
	if err := p.db.Create(record).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	p.mu.Lock()
	p.open[record.MonitoringID] = &sessionState{record: record, lastSeen: time.Now()}
	metrics.Get().OpenMonitoringSessions.Set(float64(len(p.open)))
	p.mu.Unlock()
	return record, nil
}

// IncomingEvent is one client-buffered signal inside a flush batch.
type IncomingEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	PasteSize  int   `json:"pasteSize,omitempty"`
	IsExternal bool  `json:"isExternal,omitempty"`
	IdleMs     int64 `json:"idleMs,omitempty"`
}

// FlagPayload is the monitoring-flag event payload.
type FlagPayload struct {
	Kind         string    `json:"kind"`
	MonitoringID string    `json:"monitoringId"`
	StudentID    uint      `json:"studentId"`
	ActivityID   uint      `json:"activityId"`
	SessionID    uint      `json:"sessionId"`
	Timestamp    time.Time `json:"timestamp"`
}

// Ingest processes one flushed batch in array order, updates counters
// atomically under the pipeline lock, persists the events and emits any
// raised flags.
func (p *Pipeline) Ingest(monitoringID string, events []IncomingEvent) (*models.MonitoringSession, error) {
	p.mu.Lock()
	st, ok := p.open[monitoringID]
	if !ok {
		p.mu.Unlock()
		return nil, apperr.NotFound("monitoring session")
	}
	st.lastSeen = time.Now()

	var flags []string
	rows := make([]models.MonitoringEvent, 0, len(events))
	for _, ev := range events {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		flags = append(flags, p.applyLocked(st, ev, ts)...)
		metrics.Get().RecordMonitoringEvent(ev.Type)
		rows = append(rows, models.MonitoringEvent{
			MonitoringSessionID: st.record.ID,
			StudentID:           st.record.StudentID,
			ActivityID:          st.record.ActivityID,
			LabSessionID:        st.record.LabSessionID,
			Type:                ev.Type,
			Timestamp:           ts,
			PasteSize:           ev.PasteSize,
			IsExternal:          ev.IsExternal,
			IdleMs:              ev.IdleMs,
		})
	}
	record := *st.record
	p.mu.Unlock()

	if len(rows) > 0 {
		if err := p.db.Create(&rows).Error; err != nil {
			return nil, apperr.Internal(err)
		}
	}
	if err := p.db.Save(&record).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	for _, kind := range flags {
		metrics.Get().RecordMonitoringFlag(kind)
		payload := FlagPayload{
			Kind:         kind,
			MonitoringID: record.MonitoringID,
			StudentID:    record.StudentID,
			ActivityID:   record.ActivityID,
			SessionID:    record.LabSessionID,
			Timestamp:    time.Now().UTC(),
		}
		p.pub.EmitToLabSession(record.LabSessionID, eventMonitoringFlag, payload)
		p.pub.EmitToAllInstructors(eventMonitoringFlag, payload)
	}
	p.pub.EmitToLabSession(record.LabSessionID, eventMonitoringUpdate, record)

	return &record, nil
}

// applyLocked folds one event into the counters. Caller holds p.mu.
func (p *Pipeline) applyLocked(st *sessionState, ev IncomingEvent, ts time.Time) []string {
	rec := st.record
	var flags []string

	switch ev.Type {
	case models.EventBlur:
		rec.TabSwitchCount++
		t := ts
		st.lastBlurAt = &t

	case models.EventFocus:
		if st.lastBlurAt != nil {
			away := ts.Sub(*st.lastBlurAt)
			if away > 0 {
				rec.TimeAwayMs += away.Milliseconds()
			}
			st.lastBlurAt = nil
		}

	case models.EventPaste:
		rec.PasteCount++
		if ev.PasteSize > LargePasteThreshold && ev.IsExternal {
			rec.Flags = append(rec.Flags, FlagLargePaste)
			flags = append(flags, FlagLargePaste)
		}

	case models.EventBlockedPaste:
		rec.BlockedPasteCount++
		rec.Flags = append(rec.Flags, FlagExternalPaste)
		flags = append(flags, FlagExternalPaste)

	case models.EventIdleStart:
		t := ts
		st.idleSince = &t

	case models.EventIdleEnd:
		switch {
		case ev.IdleMs > 0:
			rec.TotalIdleMs += ev.IdleMs
		case st.idleSince != nil:
			idle := ts.Sub(*st.idleSince)
			if idle > 0 {
				rec.TotalIdleMs += idle.Milliseconds()
			}
		}
		st.idleSince = nil

	case models.EventCodeChange:
		// counted only as activity; snapshots carry the content
	}

	return flags
}

// Summary is returned to the client when a window ends.
type Summary struct {
	MonitoringID       string  `json:"monitoringId"`
	TabSwitchCount     int     `json:"tabSwitchCount"`
	PasteCount         int     `json:"pasteCount"`
	BlockedPasteCount  int     `json:"blockedPasteCount"`
	TimeAwayPercentage float64 `json:"timeAwayPercentage"`
}

// End finalizes a window and produces its summary. Ending twice returns
// NotFound for the second call.
func (p *Pipeline) End(monitoringID string, totalActiveTime int64) (*Summary, error) {
	p.mu.Lock()
	st, ok := p.open[monitoringID]
	if ok {
		delete(p.open, monitoringID)
		metrics.Get().OpenMonitoringSessions.Set(float64(len(p.open)))
	}
	p.mu.Unlock()

	var record models.MonitoringSession
	if ok {
		record = *st.record
	} else {
		err := p.db.Where("monitoring_id = ?", monitoringID).First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("monitoring session")
			}
			return nil, apperr.Internal(err)
		}
		if !record.Open() {
			return nil, apperr.NotFound("monitoring session")
		}
	}

	now := time.Now().UTC()
	record.EndedAt = &now
	if totalActiveTime > 0 {
		record.TotalActiveTime = totalActiveTime
	} else {
		record.TotalActiveTime = now.Sub(record.StartedAt).Milliseconds()
	}
	if err := p.db.Save(&record).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	return &Summary{
		MonitoringID:       record.MonitoringID,
		TabSwitchCount:     record.TabSwitchCount,
		PasteCount:         record.PasteCount,
		BlockedPasteCount:  record.BlockedPasteCount,
		TimeAwayPercentage: record.TimeAwayPercentage(),
	}, nil
}

// SweepStale finalizes open windows whose student has been disconnected and
// silent for longer than StaleTimeout. Returns how many were closed.
func (p *Pipeline) SweepStale() int {
	p.mu.Lock()
	var stale []string
	for id, st := range p.open {
		if time.Since(st.lastSeen) <= StaleTimeout {
			continue
		}
		if p.online != nil && p.online.UserOnline(st.record.StudentID) {
			continue
		}
		stale = append(stale, id)
	}
	p.mu.Unlock()

	for _, id := range stale {
		if _, err := p.End(id, 0); err != nil {
			logging.S().Warnw("stale monitoring sweep failed", "monitoringId", id, "error", err)
		}
	}
	return len(stale)
}

// RunSweeper finalizes stale windows periodically until stop is closed.
func (p *Pipeline) RunSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(StaleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := p.SweepStale(); n > 0 {
				logging.S().Infow("finalized stale monitoring sessions", "count", n)
			}
		}
	}
}

// OpenCount reports how many monitoring windows are currently open.
func (p *Pipeline) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}
