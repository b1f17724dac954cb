package models

const StatusPresent = "Present"

// Attendance is one person's presence for one day; (person_id, date) is unique.
// Dates are "2006-01-02" and times "15:04:05" strings.
type Attendance struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID    string `gorm:"not null;size:50;uniqueIndex:idx_attendance_person_date,priority:1" json:"person_id"`
	Date        string `gorm:"not null;size:10;uniqueIndex:idx_attendance_person_date,priority:2;index" json:"date"`
	ArrivalTime string `gorm:"size:8" json:"arrival_time"`
	LeavingTime string `gorm:"size:8" json:"leaving_time"`
	Status      string `gorm:"size:20;not null;default:'Present'" json:"status"`

	Person *Person `gorm:"foreignKey:PersonID;references:PersonID;constraint:OnDelete:CASCADE" json:"person,omitempty"`
}

func (Attendance) TableName() string {
	return "attendance"
}

// FaceLog is a raw, rate-limited sighting of a recognized person.
type FaceLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID  string `gorm:"not null;size:50;index" json:"person_id"`
	Name      string `gorm:"size:100" json:"name"`
	Date      string `gorm:"not null;size:10;index" json:"date"`
	Time      string `gorm:"not null;size:8" json:"time"`
	Timestamp int64  `gorm:"not null;index" json:"timestamp"` // Unix timestamp

	Person *Person `gorm:"foreignKey:PersonID;references:PersonID;constraint:OnDelete:CASCADE" json:"-"`
}

func (FaceLog) TableName() string {
	return "face_logs"
}

// UnknownFace records a snapshot of an unidentified person.
type UnknownFace struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SnapshotPath string `gorm:"not null;size:255" json:"snapshot_path"`
	EncodingData []byte `gorm:"column:face_encoding" json:"-"`
	DetectedAt   int64  `gorm:"not null;index" json:"detected_at"` // Unix timestamp
}

func (UnknownFace) TableName() string {
	return "unknown_faces"
}
