package models

const (
	DefaultShiftStart = "09:00"
	DefaultShiftEnd   = "18:00"
)

// Person is a registered individual and their working shift.
// It corresponds to the 'persons' table.
type Person struct {
	PersonID       string `gorm:"primaryKey;size:50;column:person_id" json:"person_id"`
	Name           string `gorm:"not null;size:100" json:"name"`
	Email          string `gorm:"size:100" json:"email,omitempty"`
	Department     string `gorm:"size:100" json:"department,omitempty"`
	ShiftStart     string `gorm:"size:5;not null;default:'09:00'" json:"shift_start"` // "HH:MM"
	ShiftEnd       string `gorm:"size:5;not null;default:'18:00'" json:"shift_end"`   // "HH:MM"
	RegisteredDate int64  `gorm:"not null" json:"registered_date"`                    // Unix timestamp
	UpdatedAt      int64  `gorm:"not null" json:"updated_at"`                         // Unix timestamp
	FacePath       string `gorm:"size:255" json:"face_path,omitempty"`                // reference crop, relative to media storage
	EncodingData   []byte `gorm:"column:face_encoding" json:"-"`                      // float32 little-endian blob
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "persons"
}

func (p *Person) GetEmbedding() []float32 {
	return DecodeEmbedding(p.EncodingData)
}

func (p *Person) SetEmbedding(embedding []float32) {
	p.EncodingData = EncodeEmbedding(embedding)
}
