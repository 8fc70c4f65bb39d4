package zoho

import "time"

const (
	logDateLayout = "01-02-2006"
	logTimeLayout = "03:04 PM"
)

// NewTimeLogEntry fills the date and time fields from start and end in their
// own location. Ids and owner are set by the caller or LogTime.
func NewTimeLogEntry(name, notes string, start, end time.Time, billStatus string) TimeLogEntry {
	return TimeLogEntry{
		EventName:  name,
		Notes:      notes,
		Date:       start.Format(logDateLayout),
		StartTime:  start.Format(logTimeLayout),
		EndTime:    end.Format(logTimeLayout),
		BillStatus: billStatus,
	}
}
