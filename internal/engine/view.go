package engine

import (
	"time"

	"github.com/spyhelmet/helmetmon/internal/models"
)

// View is an immutable copy of the monitor model. Rendering code reads
// views; it never touches engine state.
type View struct {
	Seq        uint64                 `json:"seq"`
	At         time.Time              `json:"at"`
	Session    models.Session         `json:"session"`
	Connection models.ConnectionState `json:"connection"`

	// Collecting is true while the latest successful poll was a
	// placeholder; ReadingProgress carries the service's progress text.
	Collecting      bool   `json:"collecting"`
	ReadingProgress string `json:"reading_progress,omitempty"`

	// Latest is the last ready snapshot, nil until one arrives.
	Latest  *models.Snapshot          `json:"latest"`
	Display models.Display            `json:"display"`
	Alerts  models.AlertState         `json:"alerts"`
	Series  map[string][]models.Point `json:"series"`
}
